package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-bank/meridian-bank/internal/accounts"
	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/shared"
	"github.com/meridian-bank/meridian-bank/internal/transactions"
)

// ErrNotInitiator rejects a cancellation from anyone but the creator.
var ErrNotInitiator = errors.New("transfer: only the initiator can cancel")

// AccountStore is the slice of the account service the orchestrator
// needs: fresh reads and the conditional balance mutation.
type AccountStore interface {
	GetFresh(ctx context.Context, id uuid.UUID) (accounts.Account, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, expectedVersion, delta int64) (balance int64, version int64, err error)
	OwnerTotals(ctx context.Context, ownerID uuid.UUID) (total int64, count int64, err error)
}

// EventBus is the fast-path publisher. Failures here are logged and
// left to the outbox sweeper; they never affect the ledger outcome.
type EventBus interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Service coordinates a transfer across two independent account
// mutations and one transaction-log record. There is no multi-object
// transaction underneath, so atomicity is simulated: debit first,
// credit second, and an explicit reversing credit when the credit step
// cannot be applied.
type Service struct {
	accounts AccountStore
	txlog    transactions.Repository
	bus      EventBus
	logger   *slog.Logger
	now      func() time.Time
	retry    RetryConfig
	onRetry  func()
}

// NewService constructs the orchestrator.
func NewService(accountStore AccountStore, txlog transactions.Repository, bus EventBus, logger *slog.Logger) *Service {
	return &Service{
		accounts: accountStore,
		txlog:    txlog,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		retry:    DefaultRetryConfig(),
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithRetryConfig overrides retry tuning, for tests.
func (s *Service) WithRetryConfig(cfg RetryConfig) {
	s.retry = cfg
}

// WithRetryObserver registers a hook invoked once per version-conflict
// retry, used to feed the retry counter.
func (s *Service) WithRetryObserver(fn func()) {
	s.onRetry = fn
}

// TransferInput describes a cross-account transfer request.
type TransferInput struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        int64
	Currency      string
	ReferenceCode string
	Description   string
	ActorID       *uuid.UUID
}

// Transfer executes the transfer as a single logical unit. Every call
// resolves to a terminal transaction state or a pre-commit rejection;
// the caller never receives a "maybe applied" result.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (transactions.Transaction, error) {
	if input.FromAccountID == input.ToAccountID {
		return transactions.Transaction{}, shared.ErrSameAccount
	}
	if input.Description == "" {
		input.Description = "Transfer between accounts"
	}
	fromID, toID := input.FromAccountID, input.ToAccountID
	createInput := transactions.CreateInput{
		FromAccountID: &fromID,
		ToAccountID:   &toID,
		Amount:        input.Amount,
		Currency:      input.Currency,
		TypeID:        transactions.TypeTransfer,
		ReferenceCode: input.ReferenceCode,
		Description:   input.Description,
		CreatedBy:     input.ActorID,
	}
	if err := createInput.Validate(); err != nil {
		return transactions.Transaction{}, err
	}

	record, err := s.createPending(ctx, createInput)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateReference) {
			// Idempotent retry: the reference was already submitted.
			return s.txlog.GetByReference(ctx, input.ReferenceCode)
		}
		return transactions.Transaction{}, err
	}

	// Validation reads in ascending identity order; the mutations below
	// are always debit-then-credit, each a single conditional statement,
	// so no lock is held across accounts.
	first, second := orderedPair(fromID, toID)
	for _, id := range []uuid.UUID{first, second} {
		account, err := s.accounts.GetFresh(ctx, id)
		if err != nil {
			return s.failTransaction(ctx, record, fmt.Sprintf("account %s: %v", id, err), err)
		}
		if !account.IsActive {
			return s.failTransaction(ctx, record, fmt.Sprintf("account %s inactive", id), shared.ErrAccountInactive)
		}
		if account.Currency != createInput.Currency {
			return s.failTransaction(ctx, record, fmt.Sprintf("account %s holds %s", id, account.Currency), shared.ErrCurrencyMismatch)
		}
	}

	// Debit the source. No destination mutation is attempted when this
	// fails.
	debit, err := s.applyWithRetry(ctx, fromID, -input.Amount, s.retry.MaxAttempts)
	if err != nil {
		return s.failTransaction(ctx, record, "debit refused: "+err.Error(), err)
	}

	// Record the debit before touching the destination. A refused stamp
	// on an already-terminal record means a concurrent cancellation won;
	// undo the debit and hand back that record. Any other failure also
	// undoes the debit, then drives the record to FAILED so the caller
	// never sees a PENDING result.
	if err := s.txlog.MarkDebitApplied(ctx, record.ID, debit.sequence); err != nil {
		s.compensate(ctx, fromID, input.Amount, record.ID)
		if terminal, ok := s.terminalRecord(ctx, record.ID, err); ok {
			return terminal, nil
		}
		return s.failTransaction(ctx, record, "debit stamp refused: "+err.Error(), err)
	}

	credit, err := s.applyWithRetry(ctx, toID, input.Amount, s.retry.MaxAttempts)
	if err != nil {
		s.compensate(ctx, fromID, input.Amount, record.ID)
		return s.failTransaction(ctx, record, "credit refused: "+err.Error(), err)
	}
	if err := s.txlog.MarkCreditApplied(ctx, record.ID, credit.sequence); err != nil {
		// The record is past cancellation once the debit sequence is
		// stamped, so this is unexpected; the transfer still completed.
		s.logger.Error("mark credit applied", slog.Any("error", err), slog.String("transaction_id", record.ID.String()))
	}

	completedAt := s.now()
	return s.finalize(ctx, record.ID, transactions.StateCompleted, &completedAt, "", func(t transactions.Transaction) events.Event {
		return events.TransferCompleted{Meta: events.NewMeta(completedAt), Transaction: t.Snapshot()}
	})
}

// Direction selects between the two single-account operations.
type Direction string

const (
	// DirectionDeposit credits the account.
	DirectionDeposit Direction = "DEPOSIT"
	// DirectionWithdraw debits the account.
	DirectionWithdraw Direction = "WITHDRAW"
)

// DepositWithdrawInput describes a single-account operation.
type DepositWithdrawInput struct {
	AccountID     uuid.UUID
	Amount        int64
	Direction     Direction
	Currency      string
	ReferenceCode string
	Description   string
	ActorID       *uuid.UUID
}

// DepositOrWithdraw applies a single conditional mutation. A withdrawal
// that would breach the non-negative invariant fails the transaction
// without any partial effect.
func (s *Service) DepositOrWithdraw(ctx context.Context, input DepositWithdrawInput) (transactions.Transaction, error) {
	var typeID int64
	var delta int64
	switch input.Direction {
	case DirectionDeposit:
		typeID = transactions.TypeDeposit
		delta = input.Amount
	case DirectionWithdraw:
		typeID = transactions.TypeWithdrawal
		delta = -input.Amount
	default:
		return transactions.Transaction{}, fmt.Errorf("transfer: %w: unknown direction %q", shared.ErrInvalidInput, input.Direction)
	}
	if input.Description == "" {
		input.Description = string(input.Direction)
	}
	accountID := input.AccountID
	createInput := transactions.CreateInput{
		Amount:        input.Amount,
		Currency:      input.Currency,
		TypeID:        typeID,
		ReferenceCode: input.ReferenceCode,
		Description:   input.Description,
		CreatedBy:     input.ActorID,
	}
	if input.Direction == DirectionDeposit {
		createInput.ToAccountID = &accountID
	} else {
		createInput.FromAccountID = &accountID
	}
	if err := createInput.Validate(); err != nil {
		return transactions.Transaction{}, err
	}

	record, err := s.createPending(ctx, createInput)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateReference) {
			return s.txlog.GetByReference(ctx, input.ReferenceCode)
		}
		return transactions.Transaction{}, err
	}

	account, err := s.accounts.GetFresh(ctx, accountID)
	if err != nil {
		return s.failTransaction(ctx, record, fmt.Sprintf("account %s: %v", accountID, err), err)
	}
	if !account.IsActive {
		return s.failTransaction(ctx, record, fmt.Sprintf("account %s inactive", accountID), shared.ErrAccountInactive)
	}
	if account.Currency != createInput.Currency {
		return s.failTransaction(ctx, record, fmt.Sprintf("account %s holds %s", accountID, account.Currency), shared.ErrCurrencyMismatch)
	}

	applied, err := s.applyWithRetry(ctx, accountID, delta, s.retry.MaxAttempts)
	if err != nil {
		return s.failTransaction(ctx, record, string(input.Direction)+" refused: "+err.Error(), err)
	}
	markErr := error(nil)
	if input.Direction == DirectionDeposit {
		markErr = s.txlog.MarkCreditApplied(ctx, record.ID, applied.sequence)
	} else {
		markErr = s.txlog.MarkDebitApplied(ctx, record.ID, applied.sequence)
	}
	if markErr != nil {
		// Either a concurrent cancellation slipped in before the mutation
		// was recorded, or the stamp itself failed. Reverse the mutation
		// either way; return the terminal record when cancellation won,
		// otherwise fail the transaction.
		s.compensate(ctx, accountID, -delta, record.ID)
		if terminal, ok := s.terminalRecord(ctx, record.ID, markErr); ok {
			return terminal, nil
		}
		return s.failTransaction(ctx, record, string(input.Direction)+" stamp refused: "+markErr.Error(), markErr)
	}

	completedAt := s.now()
	return s.finalize(ctx, record.ID, transactions.StateCompleted, &completedAt, "", func(t transactions.Transaction) events.Event {
		snapshot := t.Snapshot()
		if input.Direction == DirectionDeposit {
			return events.DepositCompleted{Meta: events.NewMeta(completedAt), Transaction: snapshot, BalanceBefore: applied.balanceBefore, BalanceAfter: applied.balanceAfter}
		}
		return events.WithdrawalCompleted{Meta: events.NewMeta(completedAt), Transaction: snapshot, BalanceBefore: applied.balanceBefore, BalanceAfter: applied.balanceAfter}
	})
}

// Cancel aborts a pending transaction. It succeeds only while the
// record is PENDING with no mutation recorded; once a debit sequence is
// stamped the transaction must finish through COMPLETED or FAILED.
func (s *Service) Cancel(ctx context.Context, transactionID uuid.UUID, actorID uuid.UUID) (transactions.Transaction, error) {
	record, err := s.txlog.GetByID(ctx, transactionID)
	if err != nil {
		return transactions.Transaction{}, err
	}
	if record.CreatedBy != nil && *record.CreatedBy != actorID {
		return transactions.Transaction{}, ErrNotInitiator
	}
	at := s.now()
	var published events.Event
	cancelled, err := s.txlog.CancelWithEvent(ctx, transactionID, func(t transactions.Transaction) events.Event {
		evt := events.TransferCancelled{Meta: events.NewMeta(at), Transaction: t.Snapshot()}
		published = evt
		return evt
	})
	if err != nil {
		return transactions.Transaction{}, err
	}
	s.publish(ctx, published)
	return cancelled, nil
}

// GetTransaction returns a single transaction record.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (transactions.Transaction, error) {
	return s.txlog.GetByID(ctx, id)
}

// History returns transactions touching the account, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]transactions.Transaction, error) {
	return s.txlog.ListByAccount(ctx, accountID, limit, offset)
}

// Sent returns transactions debited from the account.
func (s *Service) Sent(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]transactions.Transaction, error) {
	return s.txlog.ListSent(ctx, accountID, limit, offset)
}

// Received returns transactions credited to the account.
func (s *Service) Received(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]transactions.Transaction, error) {
	return s.txlog.ListReceived(ctx, accountID, limit, offset)
}

// OwnerStatistics summarises holdings and activity for an owner.
type OwnerStatistics struct {
	OwnerID          uuid.UUID
	TotalBalance     int64
	AccountCount     int64
	TransactionCount int64
}

// Statistics aggregates the owner's balances and transaction count.
func (s *Service) Statistics(ctx context.Context, ownerID uuid.UUID) (OwnerStatistics, error) {
	total, count, err := s.accounts.OwnerTotals(ctx, ownerID)
	if err != nil {
		return OwnerStatistics{}, err
	}
	txCount, err := s.txlog.CountByCreator(ctx, ownerID)
	if err != nil {
		return OwnerStatistics{}, err
	}
	return OwnerStatistics{OwnerID: ownerID, TotalBalance: total, AccountCount: count, TransactionCount: txCount}, nil
}

func (s *Service) createPending(ctx context.Context, input transactions.CreateInput) (transactions.Transaction, error) {
	at := s.now()
	var published events.Event
	record, err := s.txlog.CreatePendingWithEvent(ctx, input, func(t transactions.Transaction) events.Event {
		evt := initiationEvent(at, t)
		published = evt
		return evt
	})
	if err != nil {
		return transactions.Transaction{}, err
	}
	s.publish(ctx, published)
	return record, nil
}

// initiationEvent picks the event kind matching the transaction type so
// the audit trail of a deposit or withdrawal starts with its own action.
func initiationEvent(at time.Time, t transactions.Transaction) events.Event {
	meta := events.NewMeta(at)
	switch t.TypeID {
	case transactions.TypeDeposit:
		return events.DepositInitiated{Meta: meta, Transaction: t.Snapshot()}
	case transactions.TypeWithdrawal:
		return events.WithdrawalInitiated{Meta: meta, Transaction: t.Snapshot()}
	default:
		return events.TransferInitiated{Meta: meta, Transaction: t.Snapshot()}
	}
}

// failTransaction moves the record to FAILED, emits the failure event
// and returns the original cause so callers see the typed error.
func (s *Service) failTransaction(ctx context.Context, record transactions.Transaction, note string, cause error) (transactions.Transaction, error) {
	at := s.now()
	var published events.Event
	failed, err := s.txlog.FinalizeWithEvent(ctx, record.ID, transactions.StatePending, transactions.StateFailed, nil, note, func(t transactions.Transaction) events.Event {
		evt := events.TransferFailed{Meta: events.NewMeta(at), Transaction: t.Snapshot(), Reason: note}
		published = evt
		return evt
	})
	if err != nil {
		s.logger.Error("fail transition", slog.Any("error", err), slog.String("transaction_id", record.ID.String()))
		return record, cause
	}
	s.publish(ctx, published)
	return failed, cause
}

func (s *Service) finalize(ctx context.Context, id uuid.UUID, to transactions.State, completedAt *time.Time, note string, build func(transactions.Transaction) events.Event) (transactions.Transaction, error) {
	var published events.Event
	final, err := s.txlog.FinalizeWithEvent(ctx, id, transactions.StatePending, to, completedAt, note, func(t transactions.Transaction) events.Event {
		evt := build(t)
		published = evt
		return evt
	})
	if err != nil {
		return transactions.Transaction{}, err
	}
	s.publish(ctx, published)
	return final, nil
}

// terminalRecord reports whether a refused sequence stamp was caused by
// the record already being terminal (a cancellation won the race). Only
// ErrInvalidTransition with a confirmed terminal stored state qualifies;
// a transient store failure leaves the record PENDING and must not be
// reported as a settled outcome.
func (s *Service) terminalRecord(ctx context.Context, id uuid.UUID, stampErr error) (transactions.Transaction, bool) {
	if !errors.Is(stampErr, shared.ErrInvalidTransition) {
		return transactions.Transaction{}, false
	}
	current, err := s.txlog.GetByID(ctx, id)
	if err != nil || !current.State.Terminal() {
		return transactions.Transaction{}, false
	}
	return current, true
}

// compensate reverses a previously applied delta. It retries harder
// than the forward path; money already left the source and must come
// back before the transaction is declared FAILED.
func (s *Service) compensate(ctx context.Context, accountID uuid.UUID, amount int64, transactionID uuid.UUID) {
	if _, err := s.applyWithRetry(ctx, accountID, amount, s.retry.CompensationAttempts); err != nil {
		s.logger.Error("compensation failed",
			slog.Any("error", err),
			slog.String("account_id", accountID.String()),
			slog.String("transaction_id", transactionID.String()),
			slog.Int64("amount", amount))
	}
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.bus == nil || evt == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		// The outbox sweeper redelivers; losing the fast path is fine.
		s.logger.Warn("fast-path publish", slog.Any("error", err), slog.String("kind", string(evt.EventKind())))
	}
}

func orderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}
