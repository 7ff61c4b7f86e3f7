package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. LOG_FORMAT "json" selects the
// JSON handler for log shippers; anything else stays human-readable
// for a terminal next to the till.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
