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

	"github.com/point10xdev/ERP-Rebuild/internal/app"
	"github.com/point10xdev/ERP-Rebuild/internal/auth"
	"github.com/point10xdev/ERP-Rebuild/internal/platform/cache"
	"github.com/point10xdev/ERP-Rebuild/internal/platform/db"
	"github.com/point10xdev/ERP-Rebuild/internal/scholars"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship/export"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
	"github.com/point10xdev/ERP-Rebuild/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)

	scholarsRepo := scholars.NewRepository(dbpool)
	scholarsService := scholars.NewService(scholarsRepo)
	scholarsHandler := scholars.NewHandler(logger, scholarsService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, scholarsService, sessionManager)

	scholarshipRepo := scholarship.NewRepository(dbpool)
	scholarshipService := scholarship.NewService(logger, scholarshipRepo, scholarsService, auditLogger)
	scholarshipHandler := scholarship.NewHandler(logger, scholarshipService, map[string]scholarship.Exporter{
		"xlsx": export.XLSX{},
		"csv":  export.CSV{},
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		ScholarsHandler:    scholarsHandler,
		ScholarshipHandler: scholarshipHandler,
		JobHandler:         jobHandler,
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
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
