// Package grpcerr maps the autherr taxonomy onto gRPC status codes.
package grpcerr

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sessions/internal/domain/autherr"
)

// Status converts err into a status error with a client-safe message.
// Credential failures never reveal whether the account exists.
func Status(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, autherr.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, autherr.ErrStoreUnavailable.Error())
	case errors.Is(err, autherr.ErrProviderUnavailable):
		return status.Error(codes.Unavailable, autherr.ErrProviderUnavailable.Error())
	case autherr.IsUnauthorized(err):
		return status.Error(codes.Unauthenticated, unauthorizedMessage(err))
	case errors.Is(err, autherr.ErrAccountNotConfirmed):
		return status.Error(codes.PermissionDenied, autherr.ErrAccountNotConfirmed.Error())
	case errors.Is(err, autherr.ErrAccountInactive):
		return status.Error(codes.PermissionDenied, autherr.ErrAccountInactive.Error())
	case errors.Is(err, autherr.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, autherr.ErrRateLimited.Error())
	case errors.Is(err, autherr.ErrSessionNotFound):
		return status.Error(codes.NotFound, autherr.ErrSessionNotFound.Error())
	case errors.Is(err, autherr.ErrValidation):
		return status.Error(codes.InvalidArgument, autherr.ErrValidation.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, autherr.ErrInvalidCredentials), errors.Is(err, autherr.ErrAccountNotFound):
		return autherr.ErrInvalidCredentials.Error()
	case errors.Is(err, autherr.ErrSessionExpired):
		return autherr.ErrSessionExpired.Error()
	case errors.Is(err, autherr.ErrRefreshFailed):
		return autherr.ErrRefreshFailed.Error()
	default:
		return autherr.ErrInvalidToken.Error()
	}
}
