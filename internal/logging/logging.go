// Package logging builds the process-wide slog.Logger from configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"StreamPulse/internal/config"
)

// New creates a slog.Logger per the logging config. Format "json" selects
// the JSON handler; anything else falls back to the text handler. Every
// record carries a "service" attribute so aggregated logs stay attributable.
func New(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "streampulse")
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
