package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-bank/internal/accounts"
	"github.com/meridian-bank/meridian-bank/internal/app"
	"github.com/meridian-bank/meridian-bank/internal/audit"
	"github.com/meridian-bank/meridian-bank/internal/events"
	"github.com/meridian-bank/meridian-bank/internal/observability"
	"github.com/meridian-bank/meridian-bank/internal/platform/cache"
	"github.com/meridian-bank/meridian-bank/internal/platform/db"
	"github.com/meridian-bank/meridian-bank/internal/transactions"
	"github.com/meridian-bank/meridian-bank/internal/transfer"
	"github.com/meridian-bank/meridian-bank/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, account views uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	outbox := events.NewOutbox(dbpool)
	bus := jobs.NewEventBus(asynqClient, outbox, logger)

	accountCache := accounts.NewCache(redisClient, cfg.AccountTTL)
	accountRepo := accounts.NewRepository(dbpool, outbox)
	accountService := accounts.NewService(accountRepo, accountCache, logger)
	accountHandler := accounts.NewHandler(logger, accountService)

	txRepo := transactions.NewRepository(dbpool, outbox)
	transferService := transfer.NewService(accountService, txRepo, bus, logger)

	metrics := observability.NewMetrics()
	transferService.WithRetryObserver(metrics.ObserveBalanceRetry)
	transferHandler := transfer.NewHandler(logger, transferService, metrics, cfg.TransferRateLimit)

	auditRepo := audit.NewRepository(dbpool)
	auditHandler := audit.NewHandler(logger, auditRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountHandler:  accountHandler,
		TransferHandler: transferHandler,
		AuditHandler:    auditHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
