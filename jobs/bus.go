package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-bank/internal/events"
)

// EventBus is the fast-path publisher: it pushes the envelope onto the
// events queue right after the owning transaction commits, then stamps
// the outbox row so the sweeper skips it. If any step fails the row
// stays pending and the sweeper redelivers — at-least-once either way.
type EventBus struct {
	client *asynq.Client
	outbox *events.Outbox
	logger *slog.Logger
}

// NewEventBus constructs the publisher.
func NewEventBus(client *asynq.Client, outbox *events.Outbox, logger *slog.Logger) *EventBus {
	return &EventBus{client: client, outbox: outbox, logger: logger}
}

// Publish enqueues the event for delivery.
func (b *EventBus) Publish(ctx context.Context, evt events.Event) error {
	data, err := events.Encode(evt)
	if err != nil {
		return err
	}
	if _, err := b.client.EnqueueContext(ctx, NewEventDeliverTask(data), asynq.Queue(QueueEvents), asynq.MaxRetry(10)); err != nil {
		return fmt.Errorf("jobs: enqueue event: %w", err)
	}
	if b.outbox != nil {
		if err := b.outbox.MarkDispatchedByEventID(ctx, evt.EventID()); err != nil {
			// The sweeper will enqueue it again; consumers dedupe.
			b.logger.Warn("mark dispatched", slog.Any("error", err), slog.String("event_id", evt.EventID().String()))
		}
	}
	return nil
}
