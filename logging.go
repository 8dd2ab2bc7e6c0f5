package tinyrpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every call with its duration. Failed calls are
// logged at error level.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			start := time.Now()
			result, err := next(ctx, call)

			remoteAddr := "unknown"
			if call.Handles.Request != nil {
				remoteAddr = call.Handles.Request.RemoteAddr
			}

			event := logger.Info()
			if err != nil {
				event = logger.Error().Err(err)
			}
			event.
				Str("procedure", call.Procedure).
				Str("remote", remoteAddr).
				Dur("duration", time.Since(start)).
				Msg("rpc_call")
			return result, err
		}
	}
}
