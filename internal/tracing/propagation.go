package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns a logger carrying whatever tracing fields the
// context holds.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		baseLogger = baseLogger.With().Str("trace_id", traceID).Logger()
	}
	if sessionKey := GetSessionKey(ctx); sessionKey != "" {
		baseLogger = baseLogger.With().Str("session_key", sessionKey).Logger()
	}
	return baseLogger
}
