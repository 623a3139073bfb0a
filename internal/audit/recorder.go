package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-bank/meridian-bank/internal/events"
)

// Recorder is the idempotent event consumer. The bus delivers at least
// once; the unique index behind InsertUnique guarantees each logical
// event lands as exactly one row, and duplicates are discarded
// silently.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

// NewRecorder constructs the audit recorder.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record maps the event to an audit entry and persists it once.
// It reports whether a new row was written.
func (r *Recorder) Record(ctx context.Context, evt events.Event) (bool, error) {
	entry, err := entryFor(evt)
	if err != nil {
		return false, err
	}
	inserted, err := r.repo.InsertUnique(ctx, entry)
	if err != nil {
		return false, err
	}
	if !inserted {
		r.logger.Debug("duplicate event discarded",
			slog.String("kind", string(evt.EventKind())),
			slog.String("event_id", evt.EventID().String()))
	}
	return inserted, nil
}

func entryFor(evt events.Event) (Entry, error) {
	switch e := evt.(type) {
	case events.AccountCreated:
		return accountEntry(e.Meta, e.EventKind(), e.AccountID.String(), e.AccountNumber, e.OwnerID.String(), "", "ACTIVE", e.Balance), nil
	case events.AccountDeactivated:
		return accountEntry(e.Meta, e.EventKind(), e.AccountID.String(), e.AccountNumber, e.OwnerID.String(), "ACTIVE", "INACTIVE", e.Balance), nil
	case events.TransferInitiated:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "", nil, nil), nil
	case events.DepositInitiated:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "", nil, nil), nil
	case events.WithdrawalInitiated:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "", nil, nil), nil
	case events.TransferCompleted:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "PENDING", nil, nil), nil
	case events.TransferFailed:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "PENDING", nil, nil), nil
	case events.TransferCancelled:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "PENDING", nil, nil), nil
	case events.DepositCompleted:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "PENDING", &e.BalanceBefore, &e.BalanceAfter), nil
	case events.WithdrawalCompleted:
		return transactionEntry(e.Meta, e.EventKind(), e.Transaction, "PENDING", &e.BalanceBefore, &e.BalanceAfter), nil
	default:
		return Entry{}, fmt.Errorf("audit: unmapped event kind %q", evt.EventKind())
	}
}

func accountEntry(meta events.Meta, kind events.Kind, accountID, accountNumber, ownerID, stateBefore, stateAfter string, balance int64) Entry {
	return Entry{
		EntityType:     EntityAccount,
		EntityID:       accountID,
		Action:         string(kind),
		StateBefore:    stateBefore,
		StateAfter:     stateAfter,
		BalanceBefore:  &balance,
		BalanceAfter:   &balance,
		ReferenceCode:  accountNumber,
		IdempotencyKey: meta.ID.String(),
		ActorType:      "user",
		ActorID:        ownerID,
		SourceService:  SourceLedger,
		CreatedAt:      meta.At,
	}
}

func transactionEntry(meta events.Meta, kind events.Kind, snapshot events.TransactionSnapshot, stateBefore string, balanceBefore, balanceAfter *int64) Entry {
	amount := snapshot.Amount
	actorID := ""
	if snapshot.FromAccountID != nil {
		actorID = snapshot.FromAccountID.String()
	} else if snapshot.ToAccountID != nil {
		actorID = snapshot.ToAccountID.String()
	}
	return Entry{
		EntityType:     EntityTransaction,
		EntityID:       snapshot.ID.String(),
		Action:         string(kind),
		StateBefore:    stateBefore,
		StateAfter:     snapshot.State,
		Amount:         &amount,
		BalanceBefore:  balanceBefore,
		BalanceAfter:   balanceAfter,
		ReferenceCode:  snapshot.ReferenceCode,
		IdempotencyKey: meta.ID.String(),
		ActorType:      "account",
		ActorID:        actorID,
		SourceService:  SourceLedger,
		CreatedAt:      meta.At,
	}
}
