// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/recipebox/internal/config"
	"github.com/lmittmann/tint"
)

// New returns a logger writing to w. Production defaults to JSON, everything
// else to colourised console output, unless cfg.Format says otherwise.
func New(w io.Writer, cfg config.LogConfig, env string) *slog.Logger {
	level := ParseLevel(cfg.Level)

	format := cfg.Format
	if format == "" {
		format = "console"
		if env == "production" {
			format = "json"
		}
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Err wraps an error as a tint-aware attribute so console output highlights it.
func Err(err error) slog.Attr {
	return tint.Err(err)
}
