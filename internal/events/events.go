package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the closed set of domain events carried on the bus.
type Kind string

const (
	// KindAccountCreated is emitted after an account row is committed.
	KindAccountCreated Kind = "account_created"
	// KindAccountDeactivated is emitted when an account is soft-disabled.
	KindAccountDeactivated Kind = "account_deactivated"
	// KindTransferInitiated is emitted when a transfer record enters PENDING.
	KindTransferInitiated Kind = "transfer_initiated"
	// KindDepositInitiated is emitted when a deposit record enters PENDING.
	KindDepositInitiated Kind = "deposit_initiated"
	// KindWithdrawalInitiated is emitted when a withdrawal record enters PENDING.
	KindWithdrawalInitiated Kind = "withdrawal_initiated"
	// KindTransferCompleted is emitted after both ledger mutations committed.
	KindTransferCompleted Kind = "transfer_completed"
	// KindTransferFailed is emitted after a rejected or compensated transfer.
	KindTransferFailed Kind = "transfer_failed"
	// KindTransferCancelled is emitted when a pending transfer is cancelled.
	KindTransferCancelled Kind = "transfer_cancelled"
	// KindDepositCompleted is emitted after a successful deposit.
	KindDepositCompleted Kind = "deposit_completed"
	// KindWithdrawalCompleted is emitted after a successful withdrawal.
	KindWithdrawalCompleted Kind = "withdrawal_completed"
)

// Event is the tagged union over the closed set of domain events.
// Concrete payloads are decoded exactly once at the bus boundary.
type Event interface {
	EventID() uuid.UUID
	EventKind() Kind
	OccurredAt() time.Time
}

// Meta carries the fields shared by every event.
type Meta struct {
	ID uuid.UUID `json:"event_id"`
	At time.Time `json:"occurred_at"`
}

// NewMeta stamps a fresh event identity.
func NewMeta(at time.Time) Meta {
	return Meta{ID: uuid.New(), At: at}
}

// EventID returns the unique event identity.
func (m Meta) EventID() uuid.UUID { return m.ID }

// OccurredAt returns the event timestamp.
func (m Meta) OccurredAt() time.Time { return m.At }

// TransactionSnapshot is the transaction state carried by transfer events.
type TransactionSnapshot struct {
	ID            uuid.UUID  `json:"id"`
	FromAccountID *uuid.UUID `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID `json:"to_account_id,omitempty"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	State         string     `json:"state"`
	ReferenceCode string     `json:"reference_code"`
	Description   string     `json:"description,omitempty"`
	FromSequence  *int64     `json:"from_sequence,omitempty"`
	ToSequence    *int64     `json:"to_sequence,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// AccountCreated announces a newly opened account.
type AccountCreated struct {
	Meta
	AccountID     uuid.UUID `json:"account_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	Balance       int64     `json:"balance"`
}

// EventKind identifies the event variant.
func (AccountCreated) EventKind() Kind { return KindAccountCreated }

// AccountDeactivated announces an account soft-disable.
type AccountDeactivated struct {
	Meta
	AccountID     uuid.UUID `json:"account_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"`
}

// EventKind identifies the event variant.
func (AccountDeactivated) EventKind() Kind { return KindAccountDeactivated }

// TransferInitiated announces a transfer record entering PENDING.
type TransferInitiated struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
}

// EventKind identifies the event variant.
func (TransferInitiated) EventKind() Kind { return KindTransferInitiated }

// DepositInitiated announces a deposit record entering PENDING.
type DepositInitiated struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
}

// EventKind identifies the event variant.
func (DepositInitiated) EventKind() Kind { return KindDepositInitiated }

// WithdrawalInitiated announces a withdrawal record entering PENDING.
type WithdrawalInitiated struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
}

// EventKind identifies the event variant.
func (WithdrawalInitiated) EventKind() Kind { return KindWithdrawalInitiated }

// TransferCompleted announces a fully applied transfer.
type TransferCompleted struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
}

// EventKind identifies the event variant.
func (TransferCompleted) EventKind() Kind { return KindTransferCompleted }

// TransferFailed announces a rejected or compensated transfer.
type TransferFailed struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
	Reason      string              `json:"reason,omitempty"`
}

// EventKind identifies the event variant.
func (TransferFailed) EventKind() Kind { return KindTransferFailed }

// TransferCancelled announces a caller-initiated cancellation.
type TransferCancelled struct {
	Meta
	Transaction TransactionSnapshot `json:"transaction"`
}

// EventKind identifies the event variant.
func (TransferCancelled) EventKind() Kind { return KindTransferCancelled }

// DepositCompleted announces a successful single-account credit.
type DepositCompleted struct {
	Meta
	Transaction   TransactionSnapshot `json:"transaction"`
	BalanceBefore int64               `json:"balance_before"`
	BalanceAfter  int64               `json:"balance_after"`
}

// EventKind identifies the event variant.
func (DepositCompleted) EventKind() Kind { return KindDepositCompleted }

// WithdrawalCompleted announces a successful single-account debit.
type WithdrawalCompleted struct {
	Meta
	Transaction   TransactionSnapshot `json:"transaction"`
	BalanceBefore int64               `json:"balance_before"`
	BalanceAfter  int64               `json:"balance_after"`
}

// EventKind identifies the event variant.
func (WithdrawalCompleted) EventKind() Kind { return KindWithdrawalCompleted }
