package core

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel accepts debug, info, warn and error in any case
func ParseLogLevel(level string) (slog.Level, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// NewLogger creates the text logger used by the service
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	parsed, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parsed})), nil
}
