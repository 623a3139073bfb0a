package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-bank/internal/events"
)

type eventKey struct {
	entityType, entityID, action, referenceCode string
}

type stubRepository struct {
	entries   []Entry
	seen      map[eventKey]bool
	insertErr error
}

func newStubRepository() *stubRepository {
	return &stubRepository{seen: make(map[eventKey]bool)}
}

func (s *stubRepository) InsertUnique(ctx context.Context, entry Entry) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	key := eventKey{entry.EntityType, entry.EntityID, entry.Action, entry.ReferenceCode}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.entries = append(s.entries, entry)
	return true, nil
}

func (s *stubRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestRecorder() (*Recorder, *stubRepository) {
	repo := newStubRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecorder(repo, logger), repo
}

func transferCompletedEvent() events.TransferCompleted {
	from := uuid.New()
	to := uuid.New()
	completed := time.Now().UTC()
	return events.TransferCompleted{
		Meta: events.NewMeta(completed),
		Transaction: events.TransactionSnapshot{
			ID:            uuid.New(),
			FromAccountID: &from,
			ToAccountID:   &to,
			Amount:        2500,
			Currency:      "USD",
			State:         "COMPLETED",
			ReferenceCode: "TRX-001",
			CreatedAt:     completed.Add(-time.Second),
			CompletedAt:   &completed,
		},
	}
}

func TestRecordTransferCompleted(t *testing.T) {
	recorder, repo := newTestRecorder()
	evt := transferCompletedEvent()

	inserted, err := recorder.Record(context.Background(), evt)
	require.NoError(t, err)
	require.True(t, inserted)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, EntityTransaction, entry.EntityType)
	assert.Equal(t, evt.Transaction.ID.String(), entry.EntityID)
	assert.Equal(t, string(events.KindTransferCompleted), entry.Action)
	assert.Equal(t, "PENDING", entry.StateBefore)
	assert.Equal(t, "COMPLETED", entry.StateAfter)
	assert.Equal(t, "TRX-001", entry.ReferenceCode)
	require.NotNil(t, entry.Amount)
	assert.EqualValues(t, 2500, *entry.Amount)
	assert.Equal(t, SourceLedger, entry.SourceService)
	assert.Equal(t, evt.Transaction.FromAccountID.String(), entry.ActorID)
}

func TestRecordDiscardsRedeliveredEvent(t *testing.T) {
	recorder, repo := newTestRecorder()
	evt := transferCompletedEvent()

	inserted, err := recorder.Record(context.Background(), evt)
	require.NoError(t, err)
	require.True(t, inserted)

	// A redelivery carries a fresh delivery but the same logical event.
	inserted, err = recorder.Record(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Len(t, repo.entries, 1)
}

func TestRecordAccountCreated(t *testing.T) {
	recorder, repo := newTestRecorder()
	evt := events.AccountCreated{
		Meta:          events.NewMeta(time.Now().UTC()),
		AccountID:     uuid.New(),
		OwnerID:       uuid.New(),
		AccountNumber: "123456789012",
		Currency:      "USD",
		Balance:       0,
	}

	inserted, err := recorder.Record(context.Background(), evt)
	require.NoError(t, err)
	require.True(t, inserted)

	entry := repo.entries[0]
	assert.Equal(t, EntityAccount, entry.EntityType)
	assert.Equal(t, evt.AccountID.String(), entry.EntityID)
	assert.Equal(t, "123456789012", entry.ReferenceCode)
	assert.Equal(t, "", entry.StateBefore)
	assert.Equal(t, "ACTIVE", entry.StateAfter)
	assert.Equal(t, evt.OwnerID.String(), entry.ActorID)
}

func TestRecordDepositCarriesBalances(t *testing.T) {
	recorder, repo := newTestRecorder()
	to := uuid.New()
	evt := events.DepositCompleted{
		Meta: events.NewMeta(time.Now().UTC()),
		Transaction: events.TransactionSnapshot{
			ID:            uuid.New(),
			ToAccountID:   &to,
			Amount:        900,
			Currency:      "USD",
			State:         "COMPLETED",
			ReferenceCode: "DEP-001",
		},
		BalanceBefore: 100,
		BalanceAfter:  1000,
	}

	inserted, err := recorder.Record(context.Background(), evt)
	require.NoError(t, err)
	require.True(t, inserted)

	entry := repo.entries[0]
	require.NotNil(t, entry.BalanceBefore)
	require.NotNil(t, entry.BalanceAfter)
	assert.EqualValues(t, 100, *entry.BalanceBefore)
	assert.EqualValues(t, 1000, *entry.BalanceAfter)
	assert.Equal(t, to.String(), entry.ActorID)
}

func TestRecordPropagatesStoreError(t *testing.T) {
	recorder, repo := newTestRecorder()
	repo.insertErr = errors.New("connection reset")

	_, err := recorder.Record(context.Background(), transferCompletedEvent())
	require.Error(t, err)
}
