package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/shared"
)

// RetryConfig tunes the bounded retry around conditional applies.
// Version conflicts and transient store failures retry with backoff;
// business refusals never do.
type RetryConfig struct {
	MaxAttempts          uint64
	CompensationAttempts uint64
	InitialInterval      time.Duration
	MaxInterval          time.Duration
}

// DefaultRetryConfig returns production retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:          5,
		CompensationAttempts: 10,
		InitialInterval:      10 * time.Millisecond,
		MaxInterval:          250 * time.Millisecond,
	}
}

type appliedDelta struct {
	balanceBefore int64
	balanceAfter  int64
	sequence      int64
}

// applyWithRetry drives the optimistic-concurrency loop: read the
// current version, attempt the conditional apply, and on a version
// conflict re-read and try again until the attempt budget runs out.
func (s *Service) applyWithRetry(ctx context.Context, accountID uuid.UUID, delta int64, attempts uint64) (appliedDelta, error) {
	operation := func() (appliedDelta, error) {
		account, err := s.accounts.GetFresh(ctx, accountID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return appliedDelta{}, backoff.Permanent(err)
			}
			return appliedDelta{}, err
		}
		if !account.IsActive {
			return appliedDelta{}, backoff.Permanent(shared.ErrAccountInactive)
		}
		balance, version, err := s.accounts.ApplyDelta(ctx, accountID, account.Version, delta)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrVersionConflict):
				// Another writer won; re-read and retry.
				if s.onRetry != nil {
					s.onRetry()
				}
				return appliedDelta{}, err
			case errors.Is(err, shared.ErrInsufficientFunds),
				errors.Is(err, shared.ErrAccountInactive),
				errors.Is(err, shared.ErrNotFound):
				return appliedDelta{}, backoff.Permanent(err)
			default:
				return appliedDelta{}, err
			}
		}
		return appliedDelta{balanceBefore: balance - delta, balanceAfter: balance, sequence: version}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retry.InitialInterval
	policy.MaxInterval = s.retry.MaxInterval
	result, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInsufficientFunds),
			errors.Is(err, shared.ErrAccountInactive),
			errors.Is(err, shared.ErrNotFound):
			return appliedDelta{}, err
		}
		if errors.Is(err, shared.ErrVersionConflict) {
			return appliedDelta{}, fmt.Errorf("%w: retries exhausted", shared.ErrVersionConflict)
		}
		return appliedDelta{}, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	return result, nil
}
