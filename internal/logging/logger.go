package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name
// and, for the worker, its task queue.
func NewLogger(cfg *config.Config, component string) zerolog.Logger {
	return newLogger(os.Stdout, cfg, component)
}

func newLogger(w io.Writer, cfg *config.Config, component string) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	if component == "worker" && cfg.TemporalTaskQueue != "" {
		ctx = ctx.Str("task_queue", cfg.TemporalTaskQueue)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return ctx.Logger().Level(level)
}
