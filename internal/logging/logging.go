// Package logging builds the process logger and carries request-scoped
// loggers through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tasktrack/apiserver/config"
)

const serviceName = "tasktrack"

type ctxKey struct{}

// New returns a configured logger and installs it as the slog default.
func New(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Log.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With("service", serviceName)
	if cfg.Env != "" {
		logger = logger.With("env", cfg.Env)
	}

	slog.SetDefault(logger)
	return logger
}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request logger, or the default logger when none
// was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
