package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoredEvent is an outbox row awaiting or past dispatch.
type StoredEvent struct {
	ID           int64
	EventID      uuid.UUID
	Kind         Kind
	Payload      []byte
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// Outbox persists events in the same database transaction as the state
// change that caused them, so the ledger commit and the intent to publish
// are atomic. Dispatch happens out-of-band and may repeat; consumers
// are expected to deduplicate.
type Outbox struct {
	pool *pgxpool.Pool
}

// NewOutbox constructs the outbox store.
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Append writes the event into the outbox within the caller's transaction.
func (o *Outbox) Append(ctx context.Context, tx pgx.Tx, evt Event) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox_events (event_id, kind, payload, created_at)
VALUES ($1, $2, $3, $4)`, evt.EventID(), evt.EventKind(), data, evt.OccurredAt())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Same event appended twice in a retried unit of work.
			return nil
		}
		return fmt.Errorf("events: append outbox: %w", err)
	}
	return nil
}

// PendingBatch returns undispatched rows older than the grace period,
// oldest first. The grace period leaves room for the fast path that
// publishes right after commit.
func (o *Outbox) PendingBatch(ctx context.Context, grace time.Duration, limit int) ([]StoredEvent, error) {
	cutoff := time.Now().Add(-grace)
	rows, err := o.pool.Query(ctx, `SELECT id, event_id, kind, payload, created_at, dispatched_at
FROM outbox_events WHERE dispatched_at IS NULL AND created_at <= $1 ORDER BY id ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("events: pending batch: %w", err)
	}
	defer rows.Close()
	var batch []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Kind, &e.Payload, &e.CreatedAt, &e.DispatchedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox row: %w", err)
		}
		batch = append(batch, e)
	}
	return batch, rows.Err()
}

// MarkDispatched stamps rows as handed to the bus.
func (o *Outbox) MarkDispatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.pool.Exec(ctx, `UPDATE outbox_events SET dispatched_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("events: mark dispatched: %w", err)
	}
	return nil
}

// MarkDispatchedByEventID stamps a single row after a fast-path publish.
func (o *Outbox) MarkDispatchedByEventID(ctx context.Context, eventID uuid.UUID) error {
	_, err := o.pool.Exec(ctx, `UPDATE outbox_events SET dispatched_at = NOW() WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("events: mark dispatched: %w", err)
	}
	return nil
}

// Cleanup removes dispatched rows older than the retention window.
func (o *Outbox) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	_, err := o.pool.Exec(ctx, `DELETE FROM outbox_events WHERE dispatched_at IS NOT NULL AND dispatched_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("events: cleanup: %w", err)
	}
	return nil
}
