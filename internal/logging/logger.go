// Package logging configures log/slog and carries per-request and
// per-conversation fields through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const (
	chatIDKey ctxKey = iota
	correlationIDKey
)

// Setup installs the default logger. Level is one of debug, info, warn, error
// (default info); format is text or json (default text).
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// WithChat tags ctx with the conversation id.
func WithChat(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// WithCorrelationID tags ctx with an id supplied by the caller (Lambda
// requests carry one in a header).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// FromContext returns the default logger enriched with the chi request id,
// correlation id and conversation id found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if ctx == nil {
		return logger
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		logger = logger.With("correlation_id", id)
	}
	if chatID, ok := ctx.Value(chatIDKey).(int64); ok {
		logger = logger.With("chat_id", chatID)
	}
	return logger
}
