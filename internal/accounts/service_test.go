package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/shared"
)

type stubRepository struct {
	accounts map[uuid.UUID]*Account
	byNumber map[string]uuid.UUID
	events   []events.Event

	// Error injection
	createFailures int
	createErr      error
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		accounts: make(map[uuid.UUID]*Account),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (s *stubRepository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return *account, nil
}

func (s *stubRepository) GetByNumber(ctx context.Context, number string) (Account, error) {
	id, ok := s.byNumber[number]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return *s.accounts[id], nil
}

func (s *stubRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Account, error) {
	var out []Account
	for _, account := range s.accounts {
		if account.OwnerID == ownerID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (s *stubRepository) OwnerTotals(ctx context.Context, ownerID uuid.UUID) (int64, int64, error) {
	var total, count int64
	for _, account := range s.accounts {
		if account.OwnerID == ownerID {
			total += account.Balance
			count++
		}
	}
	return total, count, nil
}

func (s *stubRepository) ApplyDelta(ctx context.Context, id uuid.UUID, expectedVersion, delta int64) (int64, int64, error) {
	account, ok := s.accounts[id]
	if !ok {
		return 0, 0, shared.ErrNotFound
	}
	if !account.IsActive {
		return 0, 0, shared.ErrAccountInactive
	}
	if account.Version != expectedVersion {
		return 0, 0, shared.ErrVersionConflict
	}
	if account.Balance+delta < 0 {
		return 0, 0, shared.ErrInsufficientFunds
	}
	account.Balance += delta
	account.Version++
	return account.Balance, account.Version, nil
}

func (s *stubRepository) CreateWithEvent(ctx context.Context, account Account, evt func(Account) events.Event) (Account, error) {
	if s.createFailures > 0 {
		s.createFailures--
		return Account{}, s.createErr
	}
	if _, exists := s.byNumber[account.AccountNumber]; exists {
		return Account{}, shared.ErrDuplicateAccountNumber
	}
	account.Balance = 0
	account.Version = 0
	account.IsActive = true
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.ID] = &account
	s.byNumber[account.AccountNumber] = account.ID
	if evt != nil {
		s.events = append(s.events, evt(account))
	}
	return account, nil
}

func (s *stubRepository) DeactivateWithEvent(ctx context.Context, id uuid.UUID, evt func(Account) events.Event) (Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	if !account.IsActive {
		return Account{}, shared.ErrAccountInactive
	}
	account.IsActive = false
	if evt != nil {
		s.events = append(s.events, evt(*account))
	}
	return *account, nil
}

func newTestService() (*Service, *stubRepository) {
	repo := newStubRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, logger), repo
}

func TestCreateGeneratesAccountNumber(t *testing.T) {
	svc, repo := newTestService()

	account, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       uuid.New(),
		AccountTypeID: 1,
		Currency:      "usd",
	})
	require.NoError(t, err)

	assert.Len(t, account.AccountNumber, 12)
	assert.Equal(t, "USD", account.Currency)
	assert.EqualValues(t, 0, account.Balance)
	assert.EqualValues(t, 0, account.Version)
	assert.True(t, account.IsActive)

	require.Len(t, repo.events, 1)
	assert.Equal(t, events.KindAccountCreated, repo.events[0].EventKind())
}

func TestCreateRetriesGeneratedNumberCollision(t *testing.T) {
	svc, repo := newTestService()
	repo.createFailures = 2
	repo.createErr = shared.ErrDuplicateAccountNumber

	account, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       uuid.New(),
		AccountTypeID: 1,
		Currency:      "USD",
	})
	require.NoError(t, err)
	assert.Len(t, account.AccountNumber, 12)
}

func TestCreateSurfacesSuppliedNumberCollision(t *testing.T) {
	svc, _ := newTestService()
	owner := uuid.New()

	_, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       owner,
		AccountTypeID: 1,
		Currency:      "USD",
		AccountNumber: "111122223333",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		OwnerID:       owner,
		AccountTypeID: 1,
		Currency:      "USD",
		AccountNumber: "111122223333",
	})
	require.ErrorIs(t, err, shared.ErrDuplicateAccountNumber)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{AccountTypeID: 1, Currency: "USD"})
	require.Error(t, err, "missing owner")

	_, err = svc.Create(context.Background(), CreateInput{OwnerID: uuid.New(), Currency: "USD"})
	require.Error(t, err, "missing account type")

	_, err = svc.Create(context.Background(), CreateInput{OwnerID: uuid.New(), AccountTypeID: 1, Currency: "XYZ123"})
	require.Error(t, err, "invalid currency")

	_, err = svc.Create(context.Background(), CreateInput{OwnerID: uuid.New(), AccountTypeID: 1, Currency: "USD", AccountNumber: "123"})
	require.Error(t, err, "short account number")
}

func TestApplyDeltaChecksInvariants(t *testing.T) {
	svc, repo := newTestService()
	account, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       uuid.New(),
		AccountTypeID: 1,
		Currency:      "USD",
	})
	require.NoError(t, err)

	balance, version, err := svc.ApplyDelta(context.Background(), account.ID, 0, 1_000)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, balance)
	assert.EqualValues(t, 1, version)

	// Stale version is refused.
	_, _, err = svc.ApplyDelta(context.Background(), account.ID, 0, 100)
	require.ErrorIs(t, err, shared.ErrVersionConflict)

	// Overdraft is refused.
	_, _, err = svc.ApplyDelta(context.Background(), account.ID, 1, -2_000)
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)

	// Inactive account refuses mutation.
	repo.accounts[account.ID].IsActive = false
	_, _, err = svc.ApplyDelta(context.Background(), account.ID, 1, 100)
	require.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestDeactivateEmitsEventOnce(t *testing.T) {
	svc, repo := newTestService()
	account, err := svc.Create(context.Background(), CreateInput{
		OwnerID:       uuid.New(),
		AccountTypeID: 1,
		Currency:      "USD",
	})
	require.NoError(t, err)

	updated, err := svc.Deactivate(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.Deactivate(context.Background(), account.ID)
	require.ErrorIs(t, err, shared.ErrAccountInactive)

	var deactivations int
	for _, evt := range repo.events {
		if evt.EventKind() == events.KindAccountDeactivated {
			deactivations++
		}
	}
	assert.Equal(t, 1, deactivations)
}

func TestGenerateAccountNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		number, err := GenerateAccountNumber()
		require.NoError(t, err)
		require.Len(t, number, 12)
		require.NoError(t, validateAccountNumber(number))
		seen[number] = true
	}
	assert.Greater(t, len(seen), 45, "numbers should be effectively unique")
}
