package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-bank/internal/audit"
	"github.com/meridian-bank/meridian-bank/internal/events"
)

// AuditConsumeJob feeds delivered events into the audit recorder. The
// queue delivers at least once; the recorder's unique index makes
// replays harmless, so any transient store error can simply be
// returned and retried.
type AuditConsumeJob struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewAuditConsumeJob constructs the consumer handler.
func NewAuditConsumeJob(recorder *audit.Recorder, logger *slog.Logger) *AuditConsumeJob {
	return &AuditConsumeJob{recorder: recorder, logger: logger}
}

// Handle processes one delivered envelope.
func (j *AuditConsumeJob) Handle(ctx context.Context, t *asynq.Task) error {
	evt, err := events.Decode(t.Payload())
	if err != nil {
		// A malformed envelope never heals; park it instead of looping.
		j.logger.Error("decode event", slog.Any("error", err))
		return asynq.SkipRetry
	}
	recorded, err := j.recorder.Record(ctx, evt)
	if err != nil {
		return err
	}
	if recorded {
		j.logger.Info("audit recorded",
			slog.String("kind", string(evt.EventKind())),
			slog.String("event_id", evt.EventID().String()))
	}
	return nil
}
