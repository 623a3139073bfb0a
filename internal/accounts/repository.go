package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/platform/db"
	"github.com/meridian-bank/meridian-bank/internal/shared"
)

const accountColumns = `id, owner_id, account_number, account_type_id, currency, balance, version, is_active, created_at, updated_at`

// Repository is the account store contract. ApplyDelta is the only
// balance mutator; it performs the compare-and-swap on version and the
// non-negativity check in one atomic statement.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	GetByNumber(ctx context.Context, number string) (Account, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Account, error)
	OwnerTotals(ctx context.Context, ownerID uuid.UUID) (total int64, count int64, err error)
	ApplyDelta(ctx context.Context, id uuid.UUID, expectedVersion, delta int64) (balance int64, version int64, err error)
	CreateWithEvent(ctx context.Context, account Account, evt func(Account) events.Event) (Account, error)
	DeactivateWithEvent(ctx context.Context, id uuid.UUID, evt func(Account) events.Event) (Account, error)
}

type repository struct {
	db     *pgxpool.Pool
	outbox *events.Outbox
}

// NewRepository constructs the pgx-backed account store.
func NewRepository(pool *pgxpool.Pool, outbox *events.Outbox) Repository {
	return &repository{db: pool, outbox: outbox}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccountRow(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByNumber(ctx context.Context, number string) (Account, error) {
	return scanAccountRow(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number=$1`, number))
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("accounts: list by owner: %w", err)
	}
	defer rows.Close()
	var result []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.AccountTypeID, &a.Currency, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("accounts: scan: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *repository) OwnerTotals(ctx context.Context, ownerID uuid.UUID) (int64, int64, error) {
	var total, count int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM accounts WHERE owner_id=$1`, ownerID).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("accounts: owner totals: %w", err)
	}
	return total, count, nil
}

// ApplyDelta executes the conditional update. The WHERE clause carries
// the version check, the active check and the non-negativity guard, so
// a concurrent writer or an overdraft can never slip through. When no
// row matches, a follow-up read classifies the refusal.
func (r *repository) ApplyDelta(ctx context.Context, id uuid.UUID, expectedVersion, delta int64) (int64, int64, error) {
	var balance, version int64
	err := r.db.QueryRow(ctx, `UPDATE accounts
SET balance = balance + $3, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2 AND is_active AND balance + $3 >= 0
RETURNING balance, version`, id, expectedVersion, delta).Scan(&balance, &version)
	if err == nil {
		return balance, version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("accounts: apply delta: %w", err)
	}
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return 0, 0, getErr
	}
	switch {
	case !current.IsActive:
		return 0, 0, shared.ErrAccountInactive
	case current.Version != expectedVersion:
		return 0, 0, shared.ErrVersionConflict
	case current.Balance+delta < 0:
		return 0, 0, shared.ErrInsufficientFunds
	default:
		// The row changed between the update and the read.
		return 0, 0, shared.ErrVersionConflict
	}
}

func (r *repository) CreateWithEvent(ctx context.Context, account Account, evt func(Account) events.Event) (Account, error) {
	var created Account
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO accounts (id, owner_id, account_number, account_type_id, currency, balance, version, is_active)
VALUES ($1, $2, $3, $4, $5, 0, 0, TRUE)
RETURNING `+accountColumns, account.ID, account.OwnerID, account.AccountNumber, account.AccountTypeID, account.Currency)
		var err error
		created, err = scanAccountRow(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return shared.ErrDuplicateAccountNumber
			}
			return err
		}
		if evt != nil {
			return r.outbox.Append(ctx, tx, evt(created))
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

func (r *repository) DeactivateWithEvent(ctx context.Context, id uuid.UUID, evt func(Account) events.Event) (Account, error) {
	var updated Account
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE accounts SET is_active = FALSE, updated_at = NOW()
WHERE id = $1 AND is_active
RETURNING `+accountColumns, id)
		var err error
		updated, err = scanAccountRow(row)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Either unknown or already inactive; tell them apart.
				if _, getErr := r.Get(ctx, id); getErr != nil {
					return getErr
				}
				return shared.ErrAccountInactive
			}
			return err
		}
		if evt != nil {
			return r.outbox.Append(ctx, tx, evt(updated))
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(row rowScanner) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.AccountTypeID, &a.Currency, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, fmt.Errorf("accounts: scan: %w", err)
	}
	return a, nil
}
