package observability

import (
	"io"
	"log/slog"

	"github.com/sayan-gitkid/sample-aws-tests/internal/config"
)

// NewLogger returns a text or JSON logger at the configured level. Records
// carry service, profile and engine.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}

	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	}
	if cfg.Query.Engine != "" {
		attrs = append(attrs, slog.String("engine", cfg.Query.Engine))
	}
	return slog.New(handler).With(attrs...)
}

// ForExecution scopes logger to one query execution.
func ForExecution(logger *slog.Logger, executionID string) *slog.Logger {
	return logger.With(slog.String("execution_id", executionID))
}
