package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/shared"
)

const generateNumberAttempts = 3

// Service exposes account operations. It is the only component allowed
// to talk to the account repository; balance mutation goes through
// ApplyDelta so the cache never outlives a committed write.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the account service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens an account with a zero balance and version zero. When
// the caller supplies no account number, generation retries on the
// (unlikely) collision; a caller-supplied collision is surfaced as is.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	generated := input.AccountNumber == ""
	attempts := 1
	if generated {
		attempts = generateNumberAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		number := input.AccountNumber
		if generated {
			var err error
			number, err = GenerateAccountNumber()
			if err != nil {
				return Account{}, err
			}
		}
		account := Account{
			ID:            uuid.New(),
			OwnerID:       input.OwnerID,
			AccountNumber: number,
			AccountTypeID: input.AccountTypeID,
			Currency:      input.Currency,
		}
		created, err := s.repo.CreateWithEvent(ctx, account, func(a Account) events.Event {
			return AccountCreated(a, s.now())
		})
		if err == nil {
			return created, nil
		}
		lastErr = err
		if !generated || !errors.Is(err, shared.ErrDuplicateAccountNumber) {
			return Account{}, err
		}
	}
	return Account{}, lastErr
}

// Get returns the account view, served from cache when possible.
// Concurrent reads for the same account collapse into one store call.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	result, err, _ := s.group.Do(id.String(), func() (any, error) {
		return s.cache.Fetch(ctx, id, func(ctx context.Context) (Account, error) {
			return s.repo.Get(ctx, id)
		})
	})
	if err != nil {
		return Account{}, err
	}
	return result.(Account), nil
}

// GetFresh bypasses the cache. Mutation paths need the current version.
func (s *Service) GetFresh(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber resolves an account by its external account number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Account, error) {
	if err := validateAccountNumber(number); err != nil {
		return Account{}, err
	}
	return s.repo.GetByNumber(ctx, number)
}

// ListByOwner returns all accounts held by an owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Account, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// OwnerTotals returns the balance sum and account count for an owner.
func (s *Service) OwnerTotals(ctx context.Context, ownerID uuid.UUID) (int64, int64, error) {
	return s.repo.OwnerTotals(ctx, ownerID)
}

// ApplyDelta performs the conditional balance mutation and drops the
// cached view on success.
func (s *Service) ApplyDelta(ctx context.Context, id uuid.UUID, expectedVersion, delta int64) (int64, int64, error) {
	balance, version, err := s.repo.ApplyDelta(ctx, id, expectedVersion, delta)
	if err != nil {
		return 0, 0, err
	}
	s.cache.Invalidate(ctx, id)
	return balance, version, nil
}

// Deactivate soft-disables the account. The balance is untouched and
// the flag is orthogonal to it; an inactive account refuses mutation.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (Account, error) {
	account, err := s.repo.DeactivateWithEvent(ctx, id, func(a Account) events.Event {
		return AccountDeactivated(a, s.now())
	})
	if err != nil {
		return Account{}, err
	}
	s.cache.Invalidate(ctx, id)
	return account, nil
}

// AccountCreated builds the domain event for a committed account row.
func AccountCreated(a Account, at time.Time) events.AccountCreated {
	return events.AccountCreated{
		Meta:          events.NewMeta(at),
		AccountID:     a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		Currency:      a.Currency,
		Balance:       a.Balance,
	}
}

// AccountDeactivated builds the domain event for a soft-disable.
func AccountDeactivated(a Account, at time.Time) events.AccountDeactivated {
	return events.AccountDeactivated{
		Meta:          events.NewMeta(at),
		AccountID:     a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
	}
}
