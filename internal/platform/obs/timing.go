package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// WithRequestID attaches a request id to ctx for timing logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(RequestIDKey).(string)
	return reqID
}

// Time logs the duration of op through the global zap logger.
// Usage: defer obs.Time(ctx, "op")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID := RequestID(ctx)

	return func(errp *error) {
		fields := []zap.Field{
			zap.String("req_id", reqID),
			zap.String("op", name),
			zap.Int64("dur_ms", time.Since(start).Milliseconds()),
		}

		if errp != nil && *errp != nil {
			zap.L().Warn("op failed", append(fields, zap.Error(*errp))...)
			return
		}
		zap.L().Debug("op done", fields...)
	}
}
