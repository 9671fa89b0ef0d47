// Package logging provides structured zap logging for expmem.
//
// The Logger wraps zap with context-aware methods that attach correlation
// fields automatically:
//   - trace_id / span_id from the active OpenTelemetry span
//   - chat.id for the conversation a request belongs to
//   - request.id assigned by the HTTP layer
//
// Sensitive keys (api keys, tokens) are redacted by the encoder before they
// reach stdout.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	ctx = logging.WithChatID(ctx, "chat-42")
//	logger.Info(ctx, "session restored", zap.String("token_state", "refreshed"))
//
// Domain packages take a plain *zap.Logger; use Underlying() to hand one out.
package logging
