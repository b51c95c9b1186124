package grpcapp

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"sessions/internal/lib/logger/sl"
)

// maskSensitiveFields masks values logged under sensitive keys in a flat
// key/value field list.
func maskSensitiveFields(fields []any) []any {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok || !sl.IsSensitive(key) {
			continue
		}
		if value, ok := fields[i+1].(string); ok {
			fields[i+1] = sl.Mask(value)
		}
	}
	return fields
}

// deadlineUnary caps every call at timeout unless the client asked for less.
func deadlineUnary(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}
