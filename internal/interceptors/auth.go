package interceptors

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"sessions/internal/grpc/grpcerr"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/services/sessions"
)

type sessionKeyType struct{}

var sessionKey = sessionKeyType{}

type SessionValidator interface {
	ValidateToken(ctx context.Context, rawToken string) (sessions.SessionContext, error)
}

type AuthInterceptor struct {
	log       *slog.Logger
	validator SessionValidator
	protected map[string]struct{}
}

func NewAuthInterceptor(log *slog.Logger, validator SessionValidator, protectedMethods []string) *AuthInterceptor {
	protected := make(map[string]struct{}, len(protectedMethods))
	for _, method := range protectedMethods {
		protected[method] = struct{}{}
	}

	return &AuthInterceptor{
		log:       log,
		validator: validator,
		protected: protected,
	}
}

// SessionFromContext returns the session resolved for the bearer token of a protected call.
func SessionFromContext(ctx context.Context) (sessions.SessionContext, bool) {
	sc, ok := ctx.Value(sessionKey).(sessions.SessionContext)
	return sc, ok
}

// ContextWithSession is used by tests that call handlers directly.
func ContextWithSession(ctx context.Context, sc sessions.SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey, sc)
}

// BearerToken extracts the token from the authorization metadata.
func BearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", false
	}

	token := strings.TrimSpace(values[0])
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}

	return token, token != ""
}

func (i *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if _, ok := i.protected[method]; !ok {
		// everyone can access
		return ctx, nil
	}

	token, ok := BearerToken(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	sc, err := i.validator.ValidateToken(ctx, token)
	if err != nil {
		i.log.Debug("rejected bearer token", slog.String("method", method), sl.Err(err))
		return ctx, grpcerr.Status(err)
	}

	return ContextWithSession(ctx, sc), nil
}

func (i *AuthInterceptor) AuthorizeUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		newCtx, err := i.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}

		return handler(newCtx, req)
	}
}
