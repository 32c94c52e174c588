package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"conti/internal/core"
	"conti/internal/remote"
	"conti/internal/storage"
)

// ErrSyncDisabled is returned when no remote adapter is configured.
var ErrSyncDisabled = errors.New("sync disabled")

// SyncState names the phase a reconcile cycle is in.
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StatePulling SyncState = "pulling"
	StateMerging SyncState = "merging"
	StatePushing SyncState = "pushing"
)

// SyncStatus is the observable state of the reconciler.
type SyncStatus struct {
	State        SyncState `json:"state"`
	LastAttempt  time.Time `json:"last_attempt"`
	LastSync     time.Time `json:"last_sync"`
	LastError    string    `json:"last_error,omitempty"`
	Cycles       int64     `json:"cycles"`
	Unauthorized bool      `json:"unauthorized,omitempty"`
}

// Reconciler drives the pull, merge, push cycle against the remote.
// At most one cycle runs at a time; triggers arriving while a cycle is
// in flight are dropped, because the running cycle already covers them
// or the next tick will.
type Reconciler struct {
	storage *storage.SQLiteRepository
	remote  remote.Adapter

	inFlight atomic.Bool

	mu     sync.Mutex
	status SyncStatus
}

func NewReconciler(storage *storage.SQLiteRepository, adapter remote.Adapter) *Reconciler {
	return &Reconciler{
		storage: storage,
		remote:  adapter,
		status:  SyncStatus{State: StateIdle},
	}
}

// Enabled reports whether a remote is configured at all.
func (r *Reconciler) Enabled() bool {
	return r.remote != nil
}

// Status returns a copy of the current sync status.
func (r *Reconciler) Status() SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RunCycle executes one reconcile cycle. It returns false when the
// trigger was dropped because another cycle is already running.
func (r *Reconciler) RunCycle(ctx context.Context) (bool, error) {
	if r.remote == nil {
		return false, ErrSyncDisabled
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Sync trigger dropped, cycle already running")
		return false, nil
	}
	defer r.inFlight.Store(false)

	err := r.cycle(ctx)
	r.finish(err)
	return true, err
}

// TrySync starts a cycle in the background and reports whether it was
// accepted. A false return means another cycle is already in flight
// and the trigger was dropped.
func (r *Reconciler) TrySync(ctx context.Context) bool {
	if r.remote == nil {
		return false
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Sync trigger dropped, cycle already running")
		return false
	}
	go func() {
		defer r.inFlight.Store(false)
		err := r.cycle(context.WithoutCancel(ctx))
		r.finish(err)
	}()
	return true
}

func (r *Reconciler) cycle(ctx context.Context) error {
	started := time.Now()
	r.setState(StatePulling)
	r.touchAttempt(started)

	settings, err := r.storage.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	creds := remote.CredentialsFrom(settings)

	// PULL. A failed pull aborts the whole cycle: merging against a
	// partial remote would resurrect rows or drop local tombstone
	// inference, so nothing else runs until the remote answers.
	remoteSnap, err := r.remote.FetchSnapshot(ctx, creds)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	tombstones, err := r.storage.PendingTombstones(ctx)
	if err != nil {
		return fmt.Errorf("load tombstones: %w", err)
	}
	deletes := pendingDeletes(tombstones)

	// MERGE. The repository holds its write lock across load, merge
	// and persist, so user edits land either before or after the
	// merged state, never inside it.
	r.setState(StateMerging)
	var merged core.Snapshot
	err = r.storage.MergeAndPersist(ctx, func(local core.Snapshot) core.Snapshot {
		merged = MergeSnapshots(local, remoteSnap, deletes)
		return merged
	})
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	// PUSH. Merged settings still carry the local secrets, so the
	// credentials are refreshed from them.
	r.setState(StatePushing)
	creds = remote.CredentialsFrom(merged.Settings)

	if err := r.retireTombstones(ctx, creds, tombstones); err != nil {
		return err
	}
	if err := r.pushUnsynced(ctx, creds, merged); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Reconcile cycle complete",
		"duration", time.Since(started),
		"expenses", len(merged.Expenses),
		"incomes", len(merged.Incomes),
		"transfers", len(merged.Transfers),
		"accounts", len(merged.Accounts),
		"tombstones", len(tombstones))
	return nil
}

// retireTombstones marks locally deleted rows on the remote and clears
// each tombstone once the remote confirms. Failures keep the tombstone
// for the next cycle.
func (r *Reconciler) retireTombstones(ctx context.Context, creds remote.Credentials, tombstones []storage.Tombstone) error {
	for _, t := range tombstones {
		if err := r.remote.MarkDeleted(ctx, creds, t.Kind, t.EntityID); err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				return fmt.Errorf("push delete: %w", err)
			}
			slog.WarnContext(ctx, "Failed to mark remote row deleted, will retry",
				"kind", t.Kind,
				"entity_id", t.EntityID,
				"error", err)
			continue
		}
		if err := r.storage.ClearTombstone(ctx, t.Kind, t.EntityID); err != nil {
			slog.WarnContext(ctx, "Failed to clear tombstone",
				"kind", t.Kind,
				"entity_id", t.EntityID,
				"error", err)
		}
	}
	return nil
}

// pushUnsynced appends every pending row and confirms each one whose
// version is still the pushed one. Rows edited mid-push stay pending
// and are re-appended next cycle; the remote keeps the last occurrence
// per id, so the duplicate is harmless.
func (r *Reconciler) pushUnsynced(ctx context.Context, creds remote.Credentials, snap core.Snapshot) error {
	expenses := Unsynced(snap.Expenses)
	if err := r.pushBatch(ctx, creds, core.KindExpense, core.Snapshot{Expenses: expenses}, len(expenses)); err != nil {
		return err
	}
	for _, e := range expenses {
		r.confirm(ctx, core.KindExpense, e.ID, e.Version)
	}

	incomes := Unsynced(snap.Incomes)
	if err := r.pushBatch(ctx, creds, core.KindIncome, core.Snapshot{Incomes: incomes}, len(incomes)); err != nil {
		return err
	}
	for _, in := range incomes {
		r.confirm(ctx, core.KindIncome, in.ID, in.Version)
	}

	transfers := Unsynced(snap.Transfers)
	if err := r.pushBatch(ctx, creds, core.KindTransfer, core.Snapshot{Transfers: transfers}, len(transfers)); err != nil {
		return err
	}
	for _, tr := range transfers {
		r.confirm(ctx, core.KindTransfer, tr.ID, tr.Version)
	}

	accounts := Unsynced(snap.Accounts)
	if err := r.pushBatch(ctx, creds, core.KindAccount, core.Snapshot{Accounts: accounts}, len(accounts)); err != nil {
		return err
	}
	for _, a := range accounts {
		r.confirm(ctx, core.KindAccount, a.ID, a.Version)
	}

	return nil
}

func (r *Reconciler) pushBatch(ctx context.Context, creds remote.Credentials, kind core.Kind, snap core.Snapshot, count int) error {
	if count == 0 {
		return nil
	}
	rows := remote.EncodeRows(kind, snap)
	if err := r.remote.AppendEntities(ctx, creds, kind, rows); err != nil {
		return fmt.Errorf("push %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "Pushed pending rows", "kind", kind, "count", count)
	return nil
}

// confirm flips the synced flag when the row version has not moved
// since the push. A changed version means a concurrent edit; the row
// stays pending on purpose.
func (r *Reconciler) confirm(ctx context.Context, kind core.Kind, id string, version int64) {
	if _, err := r.storage.MarkSynced(ctx, kind, id, version); err != nil {
		slog.WarnContext(ctx, "Failed to confirm pushed row",
			"kind", kind,
			"id", id,
			"error", err)
	}
}

// PushSections rewrites the remote config, budget and category sections
// from the local store. Section values merge remote-wins, so a local
// edit must reach the remote before the next pull or it would be rolled
// back; callers invoke this right after a section save, and ONLY then.
// The routine cycle never touches the sections, so an idle cycle stays
// write-free and cannot overwrite another device's section edit with
// stale values.
func (r *Reconciler) PushSections(ctx context.Context) error {
	if r.remote == nil {
		return ErrSyncDisabled
	}
	snap, err := r.storage.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	creds := remote.CredentialsFrom(snap.Settings)
	if err := r.remote.SaveConfig(ctx, creds, snap.Settings); err != nil {
		r.noteError(err)
		return fmt.Errorf("push config: %w", err)
	}
	if err := r.remote.SaveBudgets(ctx, creds, snap.Budgets); err != nil {
		r.noteError(err)
		return fmt.Errorf("push budgets: %w", err)
	}
	if err := r.remote.SaveCategories(ctx, creds, snap.Categories); err != nil {
		r.noteError(err)
		return fmt.Errorf("push categories: %w", err)
	}
	return nil
}

func pendingDeletes(tombstones []storage.Tombstone) PendingDeletes {
	deletes := make(PendingDeletes)
	for _, t := range tombstones {
		if deletes[t.Kind] == nil {
			deletes[t.Kind] = make(map[string]struct{})
		}
		deletes[t.Kind][t.EntityID] = struct{}{}
	}
	return deletes
}

func (r *Reconciler) setState(s SyncState) {
	r.mu.Lock()
	r.status.State = s
	r.mu.Unlock()
}

func (r *Reconciler) touchAttempt(t time.Time) {
	r.mu.Lock()
	r.status.LastAttempt = t
	r.mu.Unlock()
}

func (r *Reconciler) noteError(err error) {
	r.mu.Lock()
	r.status.LastError = err.Error()
	r.status.Unauthorized = errors.Is(err, remote.ErrUnauthorized)
	r.mu.Unlock()
}

func (r *Reconciler) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = StateIdle
	if err != nil {
		r.status.LastError = err.Error()
		r.status.Unauthorized = errors.Is(err, remote.ErrUnauthorized)
		return
	}
	r.status.LastSync = time.Now()
	r.status.LastError = ""
	r.status.Unauthorized = false
	r.status.Cycles++
}
