package autherr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"sessions/internal/domain/autherr"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid credentials", err: autherr.ErrInvalidCredentials, want: true},
		{name: "wrapped invalid token", err: fmt.Errorf("op: %w", autherr.ErrInvalidToken), want: true},
		{name: "account not found", err: autherr.ErrAccountNotFound, want: true},
		{name: "provider unavailable", err: autherr.ErrProviderUnavailable, want: false},
		{name: "store unavailable", err: autherr.ErrStoreUnavailable, want: false},
		{name: "foreign error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, autherr.IsTerminal(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, autherr.IsRetryable(fmt.Errorf("gateway: %w", autherr.ErrProviderUnavailable)))
	assert.False(t, autherr.IsRetryable(autherr.ErrInvalidCredentials))
	assert.False(t, autherr.IsRetryable(autherr.ErrRateLimited))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, autherr.IsUnauthorized(autherr.ErrSessionExpired))
	assert.True(t, autherr.IsUnauthorized(autherr.ErrRefreshFailed))
	assert.False(t, autherr.IsUnauthorized(autherr.ErrAccountInactive))
	assert.False(t, autherr.IsUnauthorized(autherr.ErrStoreUnavailable))
}
