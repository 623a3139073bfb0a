package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTransferCompleted(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	seq := int64(3)
	completed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	evt := TransferCompleted{
		Meta: NewMeta(completed),
		Transaction: TransactionSnapshot{
			ID:            uuid.New(),
			FromAccountID: &from,
			ToAccountID:   &to,
			Amount:        2500,
			Currency:      "USD",
			State:         "COMPLETED",
			ReferenceCode: "TRX-001",
			FromSequence:  &seq,
			CreatedAt:     completed.Add(-time.Second),
			CompletedAt:   &completed,
		},
	}

	data, err := Encode(evt)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	typed, ok := decoded.(TransferCompleted)
	require.True(t, ok, "decoded as %T", decoded)
	assert.Equal(t, evt.EventID(), typed.EventID())
	assert.Equal(t, KindTransferCompleted, typed.EventKind())
	assert.Equal(t, evt.Transaction.ReferenceCode, typed.Transaction.ReferenceCode)
	assert.Equal(t, evt.Transaction.Amount, typed.Transaction.Amount)
	require.NotNil(t, typed.Transaction.FromAccountID)
	assert.Equal(t, from, *typed.Transaction.FromAccountID)
	require.NotNil(t, typed.Transaction.FromSequence)
	assert.EqualValues(t, 3, *typed.Transaction.FromSequence)
}

func TestEncodeDecodeAccountCreated(t *testing.T) {
	evt := AccountCreated{
		Meta:          NewMeta(time.Now().UTC()),
		AccountID:     uuid.New(),
		OwnerID:       uuid.New(),
		AccountNumber: "123456789012",
		Currency:      "EUR",
		Balance:       0,
	}

	data, err := Encode(evt)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	typed, ok := decoded.(AccountCreated)
	require.True(t, ok, "decoded as %T", decoded)
	assert.Equal(t, evt.AccountID, typed.AccountID)
	assert.Equal(t, evt.AccountNumber, typed.AccountNumber)
	assert.Equal(t, KindAccountCreated, typed.EventKind())
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"event_id":"a2b6b1ba-94a3-4a8e-9e25-3e0d6e762f5b","kind":"account_exploded","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}
