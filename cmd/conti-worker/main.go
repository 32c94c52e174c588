package main

import (
	"context"
	"errors"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/services"
	"conti/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	bootCtx := context.Background()
	cli.SeedCredentials(bootCtx, logger, repo, cfg)

	adapter, err := backend.NewFactory(logger.Logger).Create(bootCtx, backend.Type(cfg.RemoteBackend))
	if err != nil {
		logger.Error("Failed to initialize remote backend", "error", err, "backend", cfg.RemoteBackend)
		os.Exit(1)
	}
	if adapter == nil {
		logger.Error("Worker needs a remote backend, set REMOTE_BACKEND to direct or relay")
		os.Exit(1)
	}

	// AMQP is optional: without a broker the worker still runs its
	// startup check, the periodic ticker and the daily cron refresh.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on periodic sync only", "error", err)
		} else {
			amqpClient = client
			defer amqpClient.Close()
		}
	}

	reconciler := services.NewReconciler(repo, adapter)
	syncWorker := worker.NewSyncWorker(reconciler, amqpClient, cfg.SyncInterval, cfg.SyncCron)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Starting conti-worker",
		"backend", cfg.RemoteBackend,
		"interval", cfg.SyncInterval.String(),
		"cron", cfg.SyncCron)

	if err := syncWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
