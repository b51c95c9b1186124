package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sessions/internal/domain/autherr"
)

// retry calls fn and, only when it reports the provider unavailable, calls
// it once more after delay. The retry is skipped when the request deadline
// would expire during the wait. A request deadline or cancellation hit while
// waiting on the provider is reported as ErrProviderUnavailable.
func retry[T any](ctx context.Context, delay time.Duration, fn func() (T, error)) (T, error) {
	operation := func() (T, error) {
		result, err := fn()
		if err != nil && !autherr.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		if err != nil {
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
				return result, backoff.Permanent(err)
			}
		}
		return result, err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), 1), ctx)

	result, err := backoff.RetryWithData(operation, policy)
	if err != nil && !autherr.IsRetryable(err) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return result, errors.Join(autherr.ErrProviderUnavailable, err)
	}

	return result, err
}
