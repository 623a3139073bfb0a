package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueEvents carries domain-event deliveries.
	QueueEvents = "events"
	// QueueDefault carries housekeeping jobs.
	QueueDefault = "default"

	// TaskEventDeliver delivers one domain-event envelope to consumers.
	TaskEventDeliver = "event:deliver"
	// TaskOutboxSweep re-enqueues outbox rows the fast path missed.
	TaskOutboxSweep = "outbox:sweep"
	// TaskOutboxCleanup prunes dispatched outbox rows.
	TaskOutboxCleanup = "outbox:cleanup"
)

// NewEventDeliverTask wraps an encoded event envelope. The envelope is
// already the wire form, so it rides the task payload untouched.
func NewEventDeliverTask(envelope []byte) *asynq.Task {
	return asynq.NewTask(TaskEventDeliver, envelope)
}

// NewOutboxSweepTask constructs the periodic sweep task.
func NewOutboxSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxSweep, nil)
}

// OutboxCleanupPayload carries the retention window for pruning.
type OutboxCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// NewOutboxCleanupTask constructs the cleanup task.
func NewOutboxCleanupTask(retain time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(OutboxCleanupPayload{RetainHours: int(retain.Hours())})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal cleanup payload: %w", err)
	}
	return asynq.NewTask(TaskOutboxCleanup, data), nil
}
