package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"conti/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record id does not exist locally.
var ErrNotFound = errors.New("record not found")

// SQLiteRepository is the local replica of the ledger. It has three
// writers: user CRUD, the reconciler's merge persist, and the push
// phase's synced-flag updates. A single mutex serializes them so none
// can overwrite another's write mid-flight.
type SQLiteRepository struct {
	mu      sync.Mutex
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadSnapshot reads every collection into one bundle: the reconciler's
// local input and the calculators' working set.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (core.Snapshot, error) {
	var (
		snap core.Snapshot
		err  error
	)
	if snap.Expenses, err = r.queries.ListExpenses(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	if snap.Incomes, err = r.queries.ListIncomes(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list incomes: %w", err)
	}
	if snap.Transfers, err = r.queries.ListTransfers(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list transfers: %w", err)
	}
	if snap.Accounts, err = r.queries.ListAccounts(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list accounts: %w", err)
	}
	if snap.Settings, err = r.queries.GetSettings(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("get settings: %w", err)
	}
	if snap.Budgets, err = r.queries.ListBudgets(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list budgets: %w", err)
	}
	if snap.Categories, err = r.queries.ListCategories(ctx); err != nil {
		return core.Snapshot{}, fmt.Errorf("list categories: %w", err)
	}
	return snap, nil
}

// MergeAndPersist loads the current snapshot, runs fn over it, and
// writes the result back in one transaction, all under the write lock.
// User edits can land before or after a merge, never inside one.
func (r *SQLiteRepository) MergeAndPersist(ctx context.Context, fn func(local core.Snapshot) core.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, err := r.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load local snapshot: %w", err)
	}
	merged := fn(local)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteAllExpenses(ctx); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	for _, e := range merged.Expenses {
		if err := q.InsertExpense(ctx, e); err != nil {
			return fmt.Errorf("persist expense %s: %w", e.ID, err)
		}
	}
	if err := q.DeleteAllIncomes(ctx); err != nil {
		return fmt.Errorf("clear incomes: %w", err)
	}
	for _, in := range merged.Incomes {
		if err := q.InsertIncome(ctx, in); err != nil {
			return fmt.Errorf("persist income %s: %w", in.ID, err)
		}
	}
	if err := q.DeleteAllTransfers(ctx); err != nil {
		return fmt.Errorf("clear transfers: %w", err)
	}
	for _, tr := range merged.Transfers {
		if err := q.InsertTransfer(ctx, tr); err != nil {
			return fmt.Errorf("persist transfer %s: %w", tr.ID, err)
		}
	}
	if err := q.DeleteAllAccounts(ctx); err != nil {
		return fmt.Errorf("clear accounts: %w", err)
	}
	for _, a := range merged.Accounts {
		if err := q.InsertAccount(ctx, a); err != nil {
			return fmt.Errorf("persist account %s: %w", a.ID, err)
		}
	}
	if err := q.SaveSettings(ctx, merged.Settings); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	if err := q.ReplaceBudgets(ctx, merged.Budgets); err != nil {
		return fmt.Errorf("persist budgets: %w", err)
	}
	if err := q.ReplaceCategories(ctx, merged.Categories); err != nil {
		return fmt.Errorf("persist categories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}

	slog.InfoContext(ctx, "Merged snapshot persisted",
		"expenses", len(merged.Expenses),
		"incomes", len(merged.Incomes),
		"transfers", len(merged.Transfers),
		"accounts", len(merged.Accounts))
	return nil
}

// --- expense CRUD ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queries.InsertExpense(ctx, e); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense saved", "id", e.ID, "amount_cents", e.Amount.Cents, "category", e.Category)
	return nil
}

// UpdateExpense overwrites a stored expense, bumping its version and
// resetting the synced flag: every local edit needs a re-push.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.queries.GetExpense(ctx, e.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, ErrNotFound
		}
		return core.Expense{}, fmt.Errorf("load expense: %w", err)
	}
	e.Synced = false
	e.Version = current.Version + 1
	e.Timestamp = current.Timestamp

	if _, err := r.queries.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

// DeleteExpense removes the row immediately and queues a tombstone so
// the remote copy gets marked deleted too.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, core.KindExpense, id, func(ctx context.Context, q *Queries) (int64, error) {
		return q.DeleteExpense(ctx, id)
	})
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	return e, err
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return r.queries.ListExpenses(ctx)
}

// --- income CRUD ---

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queries.InsertIncome(ctx, in); err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	slog.InfoContext(ctx, "Income saved", "id", in.ID, "amount_cents", in.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.queries.GetIncome(ctx, in.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Income{}, ErrNotFound
		}
		return core.Income{}, fmt.Errorf("load income: %w", err)
	}
	in.Synced = false
	in.Version = current.Version + 1
	in.Timestamp = current.Timestamp

	if _, err := r.queries.UpdateIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("update income: %w", err)
	}
	return in, nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, core.KindIncome, id, func(ctx context.Context, q *Queries) (int64, error) {
		return q.DeleteIncome(ctx, id)
	})
}

func (r *SQLiteRepository) GetIncome(ctx context.Context, id string) (core.Income, error) {
	in, err := r.queries.GetIncome(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Income{}, ErrNotFound
	}
	return in, err
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context) ([]core.Income, error) {
	return r.queries.ListIncomes(ctx)
}

// --- transfer CRUD ---

func (r *SQLiteRepository) CreateTransfer(ctx context.Context, tr core.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queries.InsertTransfer(ctx, tr); err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer saved", "id", tr.ID,
		"from", tr.FromAccountID, "to", tr.ToAccountID, "amount_cents", tr.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) UpdateTransfer(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.queries.GetTransfer(ctx, tr.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transfer{}, ErrNotFound
		}
		return core.Transfer{}, fmt.Errorf("load transfer: %w", err)
	}
	tr.Synced = false
	tr.Version = current.Version + 1
	tr.Timestamp = current.Timestamp

	if _, err := r.queries.UpdateTransfer(ctx, tr); err != nil {
		return core.Transfer{}, fmt.Errorf("update transfer: %w", err)
	}
	return tr, nil
}

func (r *SQLiteRepository) DeleteTransfer(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, core.KindTransfer, id, func(ctx context.Context, q *Queries) (int64, error) {
		return q.DeleteTransfer(ctx, id)
	})
}

func (r *SQLiteRepository) GetTransfer(ctx context.Context, id string) (core.Transfer, error) {
	tr, err := r.queries.GetTransfer(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, ErrNotFound
	}
	return tr, err
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	return r.queries.ListTransfers(ctx)
}

// --- account CRUD ---

// CreateAccount inserts a bank account. The first account, or one
// explicitly flagged, becomes the default; setting a new default clears
// the old one.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.queries.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(existing) == 0 {
		a.Default = true
	} else if a.Default {
		if err := r.queries.ClearDefaultAccounts(ctx); err != nil {
			return fmt.Errorf("clear default accounts: %w", err)
		}
	}

	if err := r.queries.InsertAccount(ctx, a); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account saved", "id", a.ID, "name", a.DisplayName, "default", a.Default)
	return nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.queries.GetAccount(ctx, a.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, ErrNotFound
		}
		return core.Account{}, fmt.Errorf("load account: %w", err)
	}
	if a.Default && !current.Default {
		if err := r.queries.ClearDefaultAccounts(ctx); err != nil {
			return core.Account{}, fmt.Errorf("clear default accounts: %w", err)
		}
	}
	a.Synced = false
	a.Version = current.Version + 1

	if _, err := r.queries.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

// DeleteAccount removes a bank account and queues its tombstone. When
// the default account goes away the first remaining account inherits
// the flag, so exactly one default exists while any bank account does.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	current, err := q.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load account %s: %w", id, err)
	}
	if _, err := q.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if err := q.InsertTombstone(ctx, core.KindAccount, id, time.Now()); err != nil {
		return fmt.Errorf("queue tombstone account %s: %w", id, err)
	}
	if current.Default {
		remaining, err := q.ListAccounts(ctx)
		if err != nil {
			return fmt.Errorf("list remaining accounts: %w", err)
		}
		if len(remaining) > 0 {
			heir := remaining[0]
			heir.Default = true
			heir.Synced = false
			heir.Version++
			if _, err := q.UpdateAccount(ctx, heir); err != nil {
				return fmt.Errorf("promote default account %s: %w", heir.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete account: %w", err)
	}

	slog.InfoContext(ctx, "Account deleted, tombstone queued", "id", id, "was_default", current.Default)
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := r.queries.GetAccount(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	return a, err
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return r.queries.ListAccounts(ctx)
}

// --- settings, budgets, categories ---

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, error) {
	return r.queries.GetSettings(ctx)
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save settings: %w", err)
	}
	defer tx.Rollback()
	if err := r.queries.WithTx(tx).SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetBudgets(ctx context.Context) (core.Budgets, error) {
	return r.queries.ListBudgets(ctx)
}

func (r *SQLiteRepository) SaveBudgets(ctx context.Context, b core.Budgets) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save budgets: %w", err)
	}
	defer tx.Rollback()
	if err := r.queries.WithTx(tx).ReplaceBudgets(ctx, b); err != nil {
		return fmt.Errorf("save budgets: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetCategories(ctx context.Context) ([]string, error) {
	return r.queries.ListCategories(ctx)
}

func (r *SQLiteRepository) SaveCategories(ctx context.Context, cats []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save categories: %w", err)
	}
	defer tx.Rollback()
	if err := r.queries.WithTx(tx).ReplaceCategories(ctx, core.NormalizeCategories(cats)); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return tx.Commit()
}

// --- sync support ---

// MarkSynced confirms a pushed row, guarded by the version that was
// pushed. Returns false when the row changed (or vanished) since the
// push started; the caller leaves it pending for the next cycle.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, kind core.Kind, id string, version int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		affected int64
		err      error
	)
	switch kind {
	case core.KindExpense:
		affected, err = r.queries.MarkExpenseSynced(ctx, id, version)
	case core.KindIncome:
		affected, err = r.queries.MarkIncomeSynced(ctx, id, version)
	case core.KindTransfer:
		affected, err = r.queries.MarkTransferSynced(ctx, id, version)
	case core.KindAccount:
		affected, err = r.queries.MarkAccountSynced(ctx, id, version)
	default:
		return false, fmt.Errorf("mark synced: unknown kind %q", kind)
	}
	if err != nil {
		return false, fmt.Errorf("mark %s %s synced: %w", kind, id, err)
	}
	if affected == 0 {
		slog.InfoContext(ctx, "Row changed during push, left pending", "kind", string(kind), "id", id, "version", version)
		return false, nil
	}
	return true, nil
}

// PendingTombstones lists local deletes still awaiting remote
// confirmation.
func (r *SQLiteRepository) PendingTombstones(ctx context.Context) ([]Tombstone, error) {
	return r.queries.ListTombstones(ctx)
}

// ClearTombstone drops a tombstone after the remote mark-deleted was
// acknowledged.
func (r *SQLiteRepository) ClearTombstone(ctx context.Context, kind core.Kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.queries.DeleteTombstone(ctx, kind, id); err != nil {
		return fmt.Errorf("clear tombstone %s %s: %w", kind, id, err)
	}
	return nil
}

// deleteEntity removes a row and records its tombstone in one
// transaction. The tombstone is queued even for rows that were never
// pushed: marking a row remote never had is a safe no-op.
func (r *SQLiteRepository) deleteEntity(ctx context.Context, kind core.Kind, id string, del func(context.Context, *Queries) (int64, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	affected, err := del(ctx, q)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := q.InsertTombstone(ctx, kind, id, time.Now()); err != nil {
		return fmt.Errorf("queue tombstone %s %s: %w", kind, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Record deleted, tombstone queued", "kind", string(kind), "id", id)
	return nil
}
