package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-bank/internal/app"
	"github.com/meridian-bank/meridian-bank/internal/audit"
	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/platform/db"
	"github.com/meridian-bank/meridian-bank/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	outbox := events.NewOutbox(pool)
	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, logger)

	auditJob := jobs.NewAuditConsumeJob(recorder, logger)
	sweepJob := jobs.NewOutboxSweepJob(outbox, asynqClient, logger)
	cleanupJob := jobs.NewOutboxCleanupJob(outbox, logger)

	cleanupTask, err := jobs.NewOutboxCleanupTask(cfg.OutboxRetain)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEventDeliver, Handler: auditJob.Handle},
			{Type: jobs.TaskOutboxSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskOutboxCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: jobs.NewOutboxSweepTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
			{Spec: "45 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
