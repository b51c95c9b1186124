package interceptors

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"sessions/internal/lib/logger/sl"
)

type LogHeadersInterceptor struct {
	logger *slog.Logger
}

func NewLogHeadersInterceptor(logger *slog.Logger) *LogHeadersInterceptor {
	return &LogHeadersInterceptor{logger: logger}
}

func (i *LogHeadersInterceptor) LogHeadersUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for key, values := range md {
				for _, value := range values {
					if sl.IsSensitive(key) {
						value = sl.Mask(value)
					}
					i.logger.Debug("header",
						slog.String("method", info.FullMethod),
						slog.String("key", key),
						slog.String("value", value),
					)
				}
			}
		}

		return handler(ctx, req)
	}
}
