package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyCorrelationID contextKey = "correlation_id"
	ContextKeyChatID        contextKey = "chat_id"
	ContextKeyWorker        contextKey = "worker"
)

// WithCorrelationID adds the RPC correlation id to the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, id)
}

// CorrelationIDFromContext extracts the correlation id from context
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithChatID adds the originating chat to the context
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, ContextKeyChatID, chatID)
}

// ChatIDFromContext extracts the chat id from context
func ChatIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ContextKeyChatID).(int64)
	return id, ok
}

// WithWorker tags the context with the consuming worker's name
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyWorker, name)
}

// WorkerFromContext extracts the worker name from context
func WorkerFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyWorker).(string); ok {
		return name
	}
	return ""
}

// WithDeadline creates a context with the specified deadline
func WithDeadline(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, deadline)
}
