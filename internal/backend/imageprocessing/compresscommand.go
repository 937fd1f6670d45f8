package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	CompressCommandName = "CompressCommand"

	DefaultMaxEdge   = 512
	DefaultQuality   = 70
	DefaultMaxPixels = 100_000_000
)

// acceptedFormats are the decoder names accepted as compression input
var acceptedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// CompressParams represents typed parameters for the compress command
type CompressParams struct {
	MaxEdge   int
	Quality   int
	MaxPixels int
}

// NewCompressParamsFromMap creates CompressParams from a generic map, falling back to defaults
func NewCompressParamsFromMap(params map[string]any) (*CompressParams, error) {
	maxEdge, err := getIntParam(params, "maxEdge", DefaultMaxEdge)
	if err != nil {
		return nil, err
	}
	quality, err := getIntParam(params, "quality", DefaultQuality)
	if err != nil {
		return nil, err
	}
	maxPixels, err := getIntParam(params, "maxPixels", DefaultMaxPixels)
	if err != nil {
		return nil, err
	}

	if maxEdge <= 0 {
		return nil, fmt.Errorf("maxEdge must be positive, got %d", maxEdge)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	if maxPixels <= 0 {
		return nil, fmt.Errorf("maxPixels must be positive, got %d", maxPixels)
	}

	return &CompressParams{
		MaxEdge:   maxEdge,
		Quality:   quality,
		MaxPixels: maxPixels,
	}, nil
}

// CompressCommand re-encodes a JPEG, PNG or WebP image as JPEG with its longest
// edge bounded by MaxEdge. Smaller images keep their size.
type CompressCommand struct {
	params *CompressParams
}

// NewCompressCommand creates a compress command from configuration parameters
func NewCompressCommand(params map[string]any) (Command, error) {
	typedParams, err := NewCompressParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CompressCommand{params: typedParams}, nil
}

// NewDefaultCompressCommand creates a compress command with the default bounds
func NewDefaultCompressCommand() *CompressCommand {
	return &CompressCommand{
		params: &CompressParams{
			MaxEdge:   DefaultMaxEdge,
			Quality:   DefaultQuality,
			MaxPixels: DefaultMaxPixels,
		},
	}
}

func (c *CompressCommand) Name() string {
	return CompressCommandName
}

// Execute decodes, bounds and re-encodes the image
func (c *CompressCommand) Execute(imageData []byte) ([]byte, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if !acceptedFormats[format] {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", config.Width, config.Height)
	}
	if config.Width*config.Height > c.params.MaxPixels {
		return nil, fmt.Errorf("image of %dx%d exceeds the limit of %d pixels", config.Width, config.Height, c.params.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	bounds := img.Bounds()
	var out image.Image = img
	if bounds.Dx() > c.params.MaxEdge || bounds.Dy() > c.params.MaxEdge {
		out = imaging.Fit(img, c.params.MaxEdge, c.params.MaxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(c.params.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	slog.Debug("CompressCommand: image compressed",
		"input_format", format,
		"input_width", bounds.Dx(),
		"input_height", bounds.Dy(),
		"output_width", out.Bounds().Dx(),
		"output_height", out.Bounds().Dy(),
		"input_size_bytes", len(imageData),
		"output_size_bytes", buf.Len())

	return buf.Bytes(), nil
}

// GetParams returns the typed parameters
func (c *CompressCommand) GetParams() *CompressParams {
	return c.params
}
