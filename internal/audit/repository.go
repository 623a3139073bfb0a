package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries with insert-or-ignore semantics.
type Repository interface {
	// InsertUnique writes the entry unless the logical-event tuple
	// already exists. It reports whether a row was written, closing
	// the race between concurrent duplicate deliveries inside the
	// database's unique index rather than in application code.
	InsertUnique(ctx context.Context, entry Entry) (bool, error)
	// ListByEntity returns entries for one entity, oldest first.
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Entry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed audit store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) InsertUnique(ctx context.Context, entry Entry) (bool, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO audit_logs
(entity_type, entity_id, action, state_before, state_after, amount, balance_before, balance_after, reference_code, idempotency_key, actor_type, actor_id, source_service, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (entity_type, entity_id, action, reference_code) DO NOTHING`,
		entry.EntityType, entry.EntityID, entry.Action, entry.StateBefore, entry.StateAfter,
		entry.Amount, entry.BalanceBefore, entry.BalanceAfter, entry.ReferenceCode,
		entry.IdempotencyKey, entry.ActorType, entry.ActorID, entry.SourceService, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("audit: insert: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *repository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, entity_type, entity_id, action, state_before, state_after, amount, balance_before, balance_after, reference_code, idempotency_key, actor_type, actor_id, source_service, created_at
FROM audit_logs WHERE entity_type=$1 AND entity_id=$2 ORDER BY id ASC LIMIT $3 OFFSET $4`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.StateBefore, &e.StateAfter, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.ReferenceCode, &e.IdempotencyKey, &e.ActorType, &e.ActorID, &e.SourceService, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
