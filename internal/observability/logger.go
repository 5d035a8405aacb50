package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/athenakit/athenakit/internal/config"
)

type ctxKey string

const executionIDKey ctxKey = "execution_id"

// NewLogger builds the process logger. Every record carries the service,
// profile and Athena workgroup.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	return slog.New(newHandler(cfg.Observability, writer)).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("workgroup", cfg.Athena.Workgroup),
	)
}

func newHandler(cfg config.ObservabilityConfig, writer io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogJSON {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

func ContextWithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

func ExecutionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey).(string)
	return id
}

// ExecutionAttr is the log attribute for the execution carried by ctx.
func ExecutionAttr(ctx context.Context) slog.Attr {
	return slog.String("execution_id", ExecutionIDFromContext(ctx))
}
