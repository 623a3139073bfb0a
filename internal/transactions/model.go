package transactions

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/shared"
)

// State is the transaction lifecycle state. PENDING is the only
// non-terminal state; nothing ever leaves a terminal state.
type State string

const (
	// StatePending is the initial state of every transaction.
	StatePending State = "PENDING"
	// StateCompleted marks a fully applied transaction.
	StateCompleted State = "COMPLETED"
	// StateFailed marks a rejected or compensated transaction.
	StateFailed State = "FAILED"
	// StateCancelled marks a caller-initiated cancellation of a
	// pending transaction with no ledger effect.
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StatePending: {StateCompleted, StateFailed, StateCancelled},
}

// CanTransition reports whether from→to is in the transition table.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction type identifiers, matching the transaction_types seed.
const (
	TypeTransfer   int64 = 1
	TypeDeposit    int64 = 2
	TypeWithdrawal int64 = 3
)

// Transaction is a transfer-log record. ReferenceCode is the
// caller-supplied idempotency key and is globally unique; FromSequence
// and ToSequence record the account version observed when the debit and
// credit were applied, which also marks the point past which the
// transaction can no longer be cancelled.
type Transaction struct {
	ID            uuid.UUID
	FromAccountID *uuid.UUID
	ToAccountID   *uuid.UUID
	Amount        int64
	Currency      string
	TypeID        int64
	ReferenceCode string
	State         State
	Description   string
	FromSequence  *int64
	ToSequence    *int64
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Snapshot maps the record onto the event payload form.
func (t Transaction) Snapshot() events.TransactionSnapshot {
	return events.TransactionSnapshot{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		State:         string(t.State),
		ReferenceCode: t.ReferenceCode,
		Description:   t.Description,
		FromSequence:  t.FromSequence,
		ToSequence:    t.ToSequence,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

// CreateInput describes a new pending transaction.
type CreateInput struct {
	FromAccountID *uuid.UUID
	ToAccountID   *uuid.UUID
	Amount        int64
	Currency      string
	TypeID        int64
	ReferenceCode string
	Description   string
	CreatedBy     *uuid.UUID
}

// Validate checks structural requirements common to all types.
func (in *CreateInput) Validate() error {
	if in.Amount <= 0 {
		return fmt.Errorf("transactions: %w: amount must be positive", shared.ErrInvalidInput)
	}
	if in.ReferenceCode == "" {
		return fmt.Errorf("transactions: %w: reference code required", shared.ErrInvalidInput)
	}
	if in.FromAccountID == nil && in.ToAccountID == nil {
		return fmt.Errorf("transactions: %w: at least one account required", shared.ErrInvalidInput)
	}
	normalized, err := shared.NormalizeCurrency(in.Currency)
	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}
	in.Currency = normalized
	return nil
}
