// Package identity is the gateway to the external identity provider. It
// bounds every call with a timeout and translates provider error codes into
// the autherr taxonomy; nothing above this package sees provider errors.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sessions/internal/domain/autherr"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresIn    int64
}

type Introspection struct {
	SubjectID  string
	Attributes map[string]string
}

// Provider is the raw provider client. Failures it reports as ProviderError
// are translated per operation; any other error counts as unavailability.
type Provider interface {
	InitiateAuth(ctx context.Context, identifier string, secret string) (Tokens, error)
	GetUser(ctx context.Context, accessToken string) (Introspection, error)
	RefreshAuth(ctx context.Context, refreshToken string, subjectHint string) (Tokens, error)
	GlobalSignOut(ctx context.Context, accessToken string) error
}

type Code string

const (
	CodeNotAuthorized    Code = "NotAuthorizedException"
	CodeUserNotConfirmed Code = "UserNotConfirmedException"
	CodeUserNotFound     Code = "UserNotFoundException"
	CodeTooManyRequests  Code = "TooManyRequestsException"
	CodeExpiredToken     Code = "ExpiredTokenException"
	CodeInvalidParameter Code = "InvalidParameterException"
	CodeInternalError    Code = "InternalErrorException"
)

type ProviderError struct {
	Code    Code
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

type Gateway struct {
	log      *slog.Logger
	provider Provider
	timeout  time.Duration
}

func New(log *slog.Logger, provider Provider, timeout time.Duration) *Gateway {
	return &Gateway{
		log:      log,
		provider: provider,
		timeout:  timeout,
	}
}

func (g *Gateway) VerifyCredentials(ctx context.Context, identifier string, secret string) (Tokens, error) {
	const op = "identity.VerifyCredentials"

	var tokens Tokens
	err := g.call(ctx, "verify_credentials", func(ctx context.Context) error {
		var err error
		tokens, err = g.provider.InitiateAuth(ctx, identifier, secret)
		return err
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, g.translate(op, err, credentialErrors))
	}

	return tokens, nil
}

func (g *Gateway) IntrospectToken(ctx context.Context, accessToken string) (Introspection, error) {
	const op = "identity.IntrospectToken"

	var info Introspection
	err := g.call(ctx, "introspect", func(ctx context.Context) error {
		var err error
		info, err = g.provider.GetUser(ctx, accessToken)
		return err
	})
	if err != nil {
		return Introspection{}, fmt.Errorf("%s: %w", op, g.translate(op, err, tokenErrors))
	}
	if info.SubjectID == "" {
		return Introspection{}, fmt.Errorf("%s: %w", op, autherr.ErrInvalidToken)
	}

	return info, nil
}

// RefreshToken exchanges a refresh token. Tokens.RefreshToken is empty
// unless the provider rotated it.
func (g *Gateway) RefreshToken(ctx context.Context, refreshToken string, subjectHint string) (Tokens, error) {
	const op = "identity.RefreshToken"

	var tokens Tokens
	err := g.call(ctx, "refresh", func(ctx context.Context) error {
		var err error
		tokens, err = g.provider.RefreshAuth(ctx, refreshToken, subjectHint)
		return err
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, g.translate(op, err, refreshErrors))
	}

	return tokens, nil
}

func (g *Gateway) GlobalSignOut(ctx context.Context, accessToken string) error {
	const op = "identity.GlobalSignOut"

	err := g.call(ctx, "global_sign_out", func(ctx context.Context) error {
		return g.provider.GlobalSignOut(ctx, accessToken)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, g.translate(op, err, tokenErrors))
	}

	return nil
}

func (g *Gateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	metrics.ProviderCallDurationSeconds.WithLabelValues(operation, outcome(err)).Observe(time.Since(start).Seconds())

	return err
}

func outcome(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return string(perr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

var (
	credentialErrors = map[Code]error{
		CodeNotAuthorized:    autherr.ErrInvalidCredentials,
		CodeUserNotConfirmed: autherr.ErrAccountNotConfirmed,
		CodeUserNotFound:     autherr.ErrAccountNotFound,
		CodeTooManyRequests:  autherr.ErrRateLimited,
		CodeInvalidParameter: autherr.ErrValidation,
	}
	tokenErrors = map[Code]error{
		CodeNotAuthorized:    autherr.ErrInvalidToken,
		CodeExpiredToken:     autherr.ErrTokenExpired,
		CodeUserNotFound:     autherr.ErrInvalidToken,
		CodeInvalidParameter: autherr.ErrInvalidToken,
	}
	refreshErrors = map[Code]error{
		CodeNotAuthorized:    autherr.ErrRefreshFailed,
		CodeExpiredToken:     autherr.ErrRefreshFailed,
		CodeUserNotFound:     autherr.ErrRefreshFailed,
		CodeInvalidParameter: autherr.ErrRefreshFailed,
	}
)

// translate maps err into the local taxonomy. Codes missing from known,
// timeouts and transport failures become ErrProviderUnavailable.
func (g *Gateway) translate(op string, err error, known map[Code]error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		if mapped, ok := known[perr.Code]; ok {
			return mapped
		}
	}

	g.log.Warn("identity provider unavailable", slog.String("op", op), sl.Err(err))

	return errors.Join(autherr.ErrProviderUnavailable, err)
}
