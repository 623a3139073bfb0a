package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/platform/db"
	"github.com/meridian-bank/meridian-bank/internal/shared"
)

const transactionColumns = `id, from_account_id, to_account_id, amount, currency, transaction_type_id, reference_code, state, description, from_sequence, to_sequence, created_by, created_at, completed_at`

// Repository is the transaction log contract. The reference_code unique
// index is the idempotency gate for submissions; every state change is
// conditional on the stored state so stale or duplicate attempts are
// detected instead of applied.
type Repository interface {
	CreatePendingWithEvent(ctx context.Context, input CreateInput, evt func(Transaction) events.Event) (Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetByReference(ctx context.Context, referenceCode string) (Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)
	ListSent(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)
	ListReceived(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)
	CountByCreator(ctx context.Context, createdBy uuid.UUID) (int64, error)
	MarkDebitApplied(ctx context.Context, id uuid.UUID, sequence int64) error
	MarkCreditApplied(ctx context.Context, id uuid.UUID, sequence int64) error
	FinalizeWithEvent(ctx context.Context, id uuid.UUID, from, to State, completedAt *time.Time, failureNote string, evt func(Transaction) events.Event) (Transaction, error)
	CancelWithEvent(ctx context.Context, id uuid.UUID, evt func(Transaction) events.Event) (Transaction, error)
}

type repository struct {
	db     *pgxpool.Pool
	outbox *events.Outbox
}

// NewRepository constructs the pgx-backed transaction log.
func NewRepository(pool *pgxpool.Pool, outbox *events.Outbox) Repository {
	return &repository{db: pool, outbox: outbox}
}

// CreatePendingWithEvent inserts the PENDING record and appends the
// initiation event in one transaction. A duplicate reference code maps
// to ErrDuplicateReference; the caller fetches and returns the original.
func (r *repository) CreatePendingWithEvent(ctx context.Context, input CreateInput, evt func(Transaction) events.Event) (Transaction, error) {
	var created Transaction
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO transactions (id, from_account_id, to_account_id, amount, currency, transaction_type_id, reference_code, state, description, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $9)
RETURNING `+transactionColumns,
			uuid.New(), input.FromAccountID, input.ToAccountID, input.Amount, input.Currency, input.TypeID, input.ReferenceCode, input.Description, input.CreatedBy)
		var err error
		created, err = scanTransactionRow(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return shared.ErrDuplicateReference
			}
			return err
		}
		if evt != nil {
			return r.outbox.Append(ctx, tx, evt(created))
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return scanTransactionRow(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
}

func (r *repository) GetByReference(ctx context.Context, referenceCode string) (Transaction, error) {
	return scanTransactionRow(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference_code=$1`, referenceCode))
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE from_account_id=$1 OR to_account_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
}

func (r *repository) ListSent(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE from_account_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
}

func (r *repository) ListReceived(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE to_account_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
}

func (r *repository) CountByCreator(ctx context.Context, createdBy uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE created_by=$1`, createdBy).Scan(&count); err != nil {
		return 0, fmt.Errorf("transactions: count by creator: %w", err)
	}
	return count, nil
}

// MarkDebitApplied stamps the source-account sequence. The PENDING
// guard makes the stamp lose against a concurrent cancellation; the
// orchestrator compensates the debit when that happens.
func (r *repository) MarkDebitApplied(ctx context.Context, id uuid.UUID, sequence int64) error {
	return r.markSequence(ctx, id, "from_sequence", sequence)
}

// MarkCreditApplied stamps the destination-account sequence.
func (r *repository) MarkCreditApplied(ctx context.Context, id uuid.UUID, sequence int64) error {
	return r.markSequence(ctx, id, "to_sequence", sequence)
}

func (r *repository) markSequence(ctx context.Context, id uuid.UUID, column string, sequence int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE transactions SET `+column+` = $2
WHERE id = $1 AND state = 'PENDING' AND `+column+` IS NULL`, id, sequence)
	if err != nil {
		return fmt.Errorf("transactions: mark %s: %w", column, err)
	}
	if cmd.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return shared.ErrInvalidTransition
	}
	return nil
}

// FinalizeWithEvent moves the transaction to a terminal state and
// appends the outcome event in the same database transaction, so the
// ledger outcome and the intent to publish commit together.
func (r *repository) FinalizeWithEvent(ctx context.Context, id uuid.UUID, from, to State, completedAt *time.Time, failureNote string, evt func(Transaction) events.Event) (Transaction, error) {
	if !CanTransition(from, to) {
		return Transaction{}, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, to)
	}
	var updated Transaction
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE transactions
SET state = $3,
    completed_at = COALESCE($4, completed_at),
    description = CASE WHEN $5 <> '' THEN description || ' [' || $5 || ']' ELSE description END
WHERE id = $1 AND state = $2
RETURNING `+transactionColumns, id, from, to, completedAt, failureNote)
		var err error
		updated, err = scanTransactionRow(row)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return r.classifyStaleTransition(ctx, id, from, to)
			}
			return err
		}
		if evt != nil {
			return r.outbox.Append(ctx, tx, evt(updated))
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

// CancelWithEvent cancels a pending transaction, but only when no
// account mutation has been recorded against it. Once a sequence is
// stamped the transaction must finish through COMPLETED or FAILED.
func (r *repository) CancelWithEvent(ctx context.Context, id uuid.UUID, evt func(Transaction) events.Event) (Transaction, error) {
	var updated Transaction
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE transactions SET state = 'CANCELLED'
WHERE id = $1 AND state = 'PENDING' AND from_sequence IS NULL AND to_sequence IS NULL
RETURNING `+transactionColumns, id)
		var err error
		updated, err = scanTransactionRow(row)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return r.classifyStaleTransition(ctx, id, StatePending, StateCancelled)
			}
			return err
		}
		if evt != nil {
			return r.outbox.Append(ctx, tx, evt(updated))
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

func (r *repository) classifyStaleTransition(ctx context.Context, id uuid.UUID, from, to State) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s, stored state %s", shared.ErrInvalidTransition, from, to, current.State)
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transactions: list: %w", err)
	}
	defer rows.Close()
	var result []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Currency, &t.TypeID, &t.ReferenceCode, &t.State, &t.Description, &t.FromSequence, &t.ToSequence, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("transactions: scan: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransactionRow(row rowScanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Currency, &t.TypeID, &t.ReferenceCode, &t.State, &t.Description, &t.FromSequence, &t.ToSequence, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.ErrNotFound
		}
		return Transaction{}, fmt.Errorf("transactions: scan: %w", err)
	}
	return t, nil
}
