package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/app"
	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/deploy"
	"github.com/atrium-hq/atrium/internal/platform/cache"
	"github.com/atrium-hq/atrium/internal/platform/db"
	"github.com/atrium-hq/atrium/internal/translate"
	"github.com/atrium-hq/atrium/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authzRepo := authz.NewRepository(pool)
	authzCache := authz.NewCache(redisClient, 10*time.Minute)
	authzService := authz.NewService(authzRepo, authzCache, logger)

	translateRepo := translate.NewRepository(pool)
	translator := translate.NewHTTPTranslator(cfg.TranslatorEndpoint, cfg.TranslatorAPIKey)
	translateService := translate.NewService(translateRepo, translator, cfg.TranslatorBudget, logger)

	deployRepo := deploy.NewRepository(pool)
	deployService := deploy.NewService(deploy.Options{
		Store:    deployRepo,
		Registry: deploy.DefaultRegistry(authzService, translateService),
		Migrator: db.Migrator{Pool: pool},
		Logger:   logger,
		Version:  cfg.AppVersion,
		Inline:   true,
	})

	reassignJob := jobs.NewPermissionReassignJob(authzService, logger, nil)
	cleanupJob := jobs.NewOrphanCleanupJob(authzService, logger, nil)
	sweepJob := jobs.NewTranslationSweepJob(translateService, logger, nil)
	deployJob := jobs.NewDeployRunJob(deployService, logger, nil)

	reassignTask, err := jobs.NewPermissionReassignTask(jobs.PermissionReassignPayload{})
	if err != nil {
		logger.Error("build reassign task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionReassign, Handler: reassignJob.Handle},
			{Type: jobs.TaskOrphanCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskTranslationSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskDeployRun, Handler: deployJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewTranslationSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: reassignTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewOrphanCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
