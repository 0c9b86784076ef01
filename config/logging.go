package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/utkarsh5026/fusepipe/logging"
)

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *logging.SlogLogger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.NewSlog(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
