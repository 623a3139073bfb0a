package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-bank/internal/events"
)

const (
	sweepGrace     = 30 * time.Second
	sweepBatchSize = 200
)

// OutboxSweepJob drains outbox rows that never made it onto the bus,
// typically because the fast-path publish failed after commit. Rows are
// marked dispatched only after a successful enqueue, so a crash mid-
// sweep redelivers rather than drops.
type OutboxSweepJob struct {
	outbox *events.Outbox
	client *asynq.Client
	logger *slog.Logger
}

// NewOutboxSweepJob constructs the sweep handler.
func NewOutboxSweepJob(outbox *events.Outbox, client *asynq.Client, logger *slog.Logger) *OutboxSweepJob {
	return &OutboxSweepJob{outbox: outbox, client: client, logger: logger}
}

// Handle processes one sweep tick.
func (j *OutboxSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	batch, err := j.outbox.PendingBatch(ctx, sweepGrace, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	dispatched := make([]int64, 0, len(batch))
	for _, row := range batch {
		if _, err := j.client.EnqueueContext(ctx, NewEventDeliverTask(row.Payload), asynq.Queue(QueueEvents), asynq.MaxRetry(10)); err != nil {
			j.logger.Warn("sweep enqueue", slog.Any("error", err), slog.String("event_id", row.EventID.String()))
			continue
		}
		dispatched = append(dispatched, row.ID)
	}
	if err := j.outbox.MarkDispatched(ctx, dispatched); err != nil {
		return err
	}
	j.logger.Info("outbox sweep", slog.Int("pending", len(batch)), slog.Int("dispatched", len(dispatched)))
	return nil
}

// OutboxCleanupJob prunes dispatched rows past retention.
type OutboxCleanupJob struct {
	outbox *events.Outbox
	logger *slog.Logger
}

// NewOutboxCleanupJob constructs the cleanup handler.
func NewOutboxCleanupJob(outbox *events.Outbox, logger *slog.Logger) *OutboxCleanupJob {
	return &OutboxCleanupJob{outbox: outbox, logger: logger}
}

// Handle processes one cleanup tick.
func (j *OutboxCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OutboxCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retain := time.Duration(payload.RetainHours) * time.Hour
	if retain <= 0 {
		retain = 24 * time.Hour
	}
	return j.outbox.Cleanup(ctx, retain)
}
