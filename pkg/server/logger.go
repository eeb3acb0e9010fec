package server

import (
	"io"
	"log/slog"

	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/debug"
)

// NewLogger builds a slog.Logger for the configured level and format and
// enables the configured debug categories.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	debug.Init(cfg.Debug)

	opts := &slog.HandlerOptions{Level: debug.ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
