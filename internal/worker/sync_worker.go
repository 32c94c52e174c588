package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/remote"
	"conti/internal/services"
)

// SyncWorker drives reconcile cycles from four triggers: the startup
// check, AMQP messages published on local edits, a periodic ticker for
// anything missed, and a daily cron refresh. All four funnel into the
// reconciler, whose in-flight guard drops overlapping triggers.
type SyncWorker struct {
	reconciler *services.Reconciler
	amqpClient *amqp.Client
	interval   time.Duration
	cronSpec   string
}

func NewSyncWorker(reconciler *services.Reconciler, amqpClient *amqp.Client, interval time.Duration, cronSpec string) *SyncWorker {
	return &SyncWorker{
		reconciler: reconciler,
		amqpClient: amqpClient,
		interval:   interval,
		cronSpec:   cronSpec,
	}
}

// Run blocks until the context ends or a fatal error occurs. Transport
// failures inside a cycle are not fatal: they log and wait for the
// next trigger.
func (w *SyncWorker) Run(ctx context.Context) error {
	if !w.reconciler.Enabled() {
		return services.ErrSyncDisabled
	}

	// Catch up on anything that happened while the worker was down
	// before settling into trigger-driven operation.
	w.runCycle(ctx, amqp.TriggerStartup)

	g, ctx := errgroup.WithContext(ctx)

	if w.amqpClient != nil {
		g.Go(func() error {
			err := w.amqpClient.ConsumeSyncTriggers(ctx, func(msg *amqp.SyncTriggerMessage) error {
				w.runCycle(ctx, msg.Reason)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("consume sync triggers: %w", err)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				w.runCycle(ctx, "periodic")
			}
		}
	})

	if w.cronSpec != "" {
		g.Go(func() error {
			c := cron.New()
			if _, err := c.AddFunc(w.cronSpec, func() {
				w.runCycle(ctx, "scheduled")
			}); err != nil {
				return fmt.Errorf("schedule daily sync: %w", err)
			}
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	return g.Wait()
}

// runCycle executes one reconcile cycle, classifying the outcome.
// Credential failures are surfaced loudly; transport failures only log,
// the next trigger retries.
func (w *SyncWorker) runCycle(ctx context.Context, reason string) {
	started := time.Now()
	ran, err := w.reconciler.RunCycle(ctx)
	switch {
	case err == nil && !ran:
		slog.DebugContext(ctx, "Sync trigger dropped, cycle in flight", "reason", reason)
	case errors.Is(err, remote.ErrUnauthorized):
		slog.ErrorContext(ctx, "Sync rejected, re-authentication required",
			"reason", reason,
			"error", err)
	case err != nil:
		slog.WarnContext(ctx, "Sync cycle failed, will retry on next trigger",
			"reason", reason,
			"error", err)
	default:
		slog.InfoContext(ctx, "Sync cycle finished",
			"reason", reason,
			"duration", time.Since(started))
	}
}
