package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/point10xdev/ERP-Rebuild/internal/app"
	"github.com/point10xdev/ERP-Rebuild/internal/platform/db"
	"github.com/point10xdev/ERP-Rebuild/internal/scholars"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
	"github.com/point10xdev/ERP-Rebuild/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)

	scholarsRepo := scholars.NewRepository(pool)
	scholarsService := scholars.NewService(scholarsRepo)

	scholarshipRepo := scholarship.NewRepository(pool)
	scholarshipService := scholarship.NewService(logger, scholarshipRepo, scholarsService, auditLogger)

	generateHandler := jobs.NewGenerateDisbursementsHandler(scholarshipService, logger, time.Now)
	integrityHandler := jobs.NewLedgerIntegrityHandler(pool, logger)

	generateTask, err := jobs.NewGenerateDisbursementsTask(jobs.GenerateDisbursementsPayload{})
	if err != nil {
		logger.Error("build generate task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeGenerateDisbursements, Handler: generateHandler},
			{Type: jobs.TaskTypeLedgerIntegrity, Handler: integrityHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.GenerateCron, Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
