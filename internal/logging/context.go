package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type chatCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if chatID := ChatIDFromContext(ctx); chatID != "" {
		fields = append(fields, zap.String("chat.id", chatID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	return fields
}

// WithChatID adds the conversation id to context. Over-long ids are truncated.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatCtxKey{}, clampID(chatID))
}

// ChatIDFromContext extracts the conversation id from context.
func ChatIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(chatCtxKey{}).(string)
	return s
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, clampID(requestID))
}

// RequestIDFromContext extracts the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

func clampID(id string) string {
	if len(id) > maxIDLen {
		return id[:maxIDLen]
	}
	return id
}
