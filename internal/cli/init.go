// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/conti, cmd/conti-worker, and cmd/conti-auth.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conti/internal/config"
	"conti/internal/log"
	"conti/internal/storage"
)

// SetupLogger initializes structured logging for a binary and installs
// it as the process default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger.WithComponent(component)
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// SeedCredentials copies credential env values into the stored settings
// record, filling only the fields that are still empty there. Values
// configured through the API always win over the environment.
func SeedCredentials(ctx context.Context, logger *log.Logger, repo *storage.SQLiteRepository, cfg *config.Config) {
	settings, err := repo.GetSettings(ctx)
	if err != nil {
		logger.Error("Failed to load settings for credential seeding", "error", err)
		return
	}

	changed := false
	if settings.SpreadsheetID == "" && cfg.GoogleSpreadsheetID != "" {
		settings.SpreadsheetID = cfg.GoogleSpreadsheetID
		changed = true
	}
	if settings.RelayURL == "" && cfg.RelayURL != "" {
		settings.RelayURL = cfg.RelayURL
		changed = true
	}
	if settings.RelaySecret == "" && cfg.RelaySecret != "" {
		settings.RelaySecret = cfg.RelaySecret
		changed = true
	}
	if !changed {
		return
	}

	if err := repo.SaveSettings(ctx, settings); err != nil {
		logger.Error("Failed to seed credentials into settings", "error", err)
		return
	}
	logger.Info("Seeded credentials from environment into settings")
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
