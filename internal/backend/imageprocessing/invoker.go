package imageprocessing

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/chestxray/internal/common"
)

// CommandInvoker executes a fixed sequence of commands on image data
type CommandInvoker struct {
	commands []Command
}

// NewCommandInvoker creates all configured commands up front so that
// configuration mistakes surface at startup and not on the first upload.
func NewCommandInvoker(configs []CommandConfig) (*CommandInvoker, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one command must be configured")
	}
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := NewCommand(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("command at index %d: %w", i, err)
		}
		commands = append(commands, command)
	}
	return &CommandInvoker{commands: commands}, nil
}

// NewDefaultInvoker returns the standard upload pipeline: a single CompressCommand
// bounded to 512px at JPEG quality 70.
func NewDefaultInvoker() *CommandInvoker {
	return &CommandInvoker{commands: []Command{NewDefaultCompressCommand()}}
}

// Execute applies all commands in sequence. Any failure is reported as common.ErrCodec.
func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()
	currentData := imageData

	for idx, command := range i.commands {
		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Warn("image command failed",
				"index", idx,
				"command_name", command.Name(),
				"input_size_bytes", len(currentData),
				"error", err)
			return nil, fmt.Errorf("%w: %s: %v", common.ErrCodec, command.Name(), err)
		}
		currentData = processedData
	}

	slog.Debug("image pipeline completed",
		"command_count", len(i.commands),
		"duration_ms", time.Since(start).Milliseconds(),
		"input_size_bytes", len(imageData),
		"output_size_bytes", len(currentData))

	return currentData, nil
}
