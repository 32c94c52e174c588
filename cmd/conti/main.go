package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("server")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	bootCtx := context.Background()
	cli.SeedCredentials(bootCtx, logger, repo, cfg)

	// AMQP is optional for the server: without a broker, writes are no
	// longer announced but the worker's periodic tick still picks them up.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, sync triggers degraded to periodic", "error", err)
		} else {
			amqpClient = client
			defer amqpClient.Close()
		}
	}

	adapter, err := backend.NewFactory(logger.Logger).Create(bootCtx, backend.Type(cfg.RemoteBackend))
	if err != nil {
		logger.Error("Failed to initialize remote backend", "error", err, "backend", cfg.RemoteBackend)
		os.Exit(1)
	}

	// The server holds its own reconciler so POST /api/sync can run a
	// cycle directly instead of round-tripping through the broker.
	var reconciler *services.Reconciler
	if adapter != nil {
		reconciler = services.NewReconciler(repo, adapter)
	}

	ledger := services.NewLedgerService(repo, amqpClient)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, reconciler, logger, cfg.CORSOrigins)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting conti server", "port", cfg.Port, "backend", cfg.RemoteBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
