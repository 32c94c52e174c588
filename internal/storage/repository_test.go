package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestExpenseRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	want := core.Expense{
		ID:         "e1",
		Date:       core.NewDate(2024, 3, 5),
		Time:       "12:30",
		Amount:     core.Money{Cents: 450},
		Category:   "coffee",
		Note:       "espresso",
		AccountRef: "bank-main",
		Version:    1,
		Timestamp:  time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC),
	}
	if err := repo.CreateExpense(ctx, want); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	got, err := repo.GetExpense(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Date.String() != "2024-03-05" || got.Time != "12:30" ||
		got.Amount.Cents != 450 || got.Category != "coffee" ||
		got.Note != "espresso" || got.AccountRef != "bank-main" {
		t.Fatalf("got %+v", got)
	}
	if got.Synced || got.Version != 1 {
		t.Fatalf("sync state = %v/%d", got.Synced, got.Version)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestGetExpenseMissing(t *testing.T) {
	repo := newRepo(t)
	if _, err := repo.GetExpense(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListExpensesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rows := []core.Expense{
		{ID: "e1", Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 100}, Category: "a", Version: 1,
			Timestamp: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
		{ID: "e2", Date: core.NewDate(2024, 3, 7), Amount: core.Money{Cents: 100}, Category: "a", Version: 1,
			Timestamp: time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)},
		{ID: "e3", Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 100}, Category: "a", Version: 1,
			Timestamp: time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)},
	}
	for _, e := range rows {
		if err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense %s: %v", e.ID, err)
		}
	}

	got, err := repo.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	wantOrder := []string{"e2", "e3", "e1"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d", len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestUpdateExpenseOwnsSyncState(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	created := core.Expense{
		ID: "e1", Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 450},
		Category: "coffee", Version: 1,
		Timestamp: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	if err := repo.CreateExpense(ctx, created); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	// The caller cannot smuggle in sync state: version, synced flag and
	// creation timestamp are owned by the repository.
	edit := created
	edit.Amount = core.Money{Cents: 500}
	edit.Synced = true
	edit.Version = 99
	edit.Timestamp = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	updated, err := repo.UpdateExpense(ctx, edit)
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if updated.Synced {
		t.Fatalf("edited row must be unsynced")
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
	if !updated.Timestamp.Equal(created.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", updated.Timestamp, created.Timestamp)
	}

	stored, err := repo.GetExpense(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if stored.Amount.Cents != 500 || stored.Version != 2 || stored.Synced {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestUpdateExpenseMissing(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.UpdateExpense(context.Background(), core.Expense{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteQueuesTombstone(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	e := core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 5),
		Amount: core.Money{Cents: 450}, Category: "coffee", Version: 1}
	if err := repo.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	// Never pushed, yet the delete still queues a tombstone: marking a
	// row the remote never had is a safe no-op on the remote side.
	if err := repo.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	if _, err := repo.GetExpense(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row should be gone, got %v", err)
	}
	tombstones, err := repo.PendingTombstones(ctx)
	if err != nil {
		t.Fatalf("PendingTombstones: %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].Kind != core.KindExpense || tombstones[0].EntityID != "e1" {
		t.Fatalf("tombstones = %+v", tombstones)
	}
	if tombstones[0].CreatedAt.IsZero() {
		t.Fatalf("tombstone must record its creation instant")
	}

	// Recreate and delete the same id again. The tombstone table keeps a
	// single entry per (kind, id).
	if err := repo.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense again: %v", err)
	}
	if err := repo.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExpense again: %v", err)
	}
	tombstones, err = repo.PendingTombstones(ctx)
	if err != nil {
		t.Fatalf("PendingTombstones: %v", err)
	}
	if len(tombstones) != 1 {
		t.Fatalf("tombstones = %+v", tombstones)
	}
}

func TestDeleteMissingExpense(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.DeleteExpense(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	tombstones, err := repo.PendingTombstones(ctx)
	if err != nil {
		t.Fatalf("PendingTombstones: %v", err)
	}
	if len(tombstones) != 0 {
		t.Fatalf("failed delete must not queue a tombstone, got %+v", tombstones)
	}
}

func TestClearTombstone(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	e := core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 5),
		Amount: core.Money{Cents: 450}, Category: "coffee", Version: 1}
	if err := repo.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if err := repo.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	if err := repo.ClearTombstone(ctx, core.KindExpense, "e1"); err != nil {
		t.Fatalf("ClearTombstone: %v", err)
	}
	tombstones, err := repo.PendingTombstones(ctx)
	if err != nil {
		t.Fatalf("PendingTombstones: %v", err)
	}
	if len(tombstones) != 0 {
		t.Fatalf("tombstones = %+v", tombstones)
	}

	// Clearing a tombstone that is not there is not an error.
	if err := repo.ClearTombstone(ctx, core.KindExpense, "e1"); err != nil {
		t.Fatalf("ClearTombstone repeat: %v", err)
	}
}

func TestMarkSyncedVersionGuard(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	e := core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 5),
		Amount: core.Money{Cents: 450}, Category: "coffee", Version: 1}
	if err := repo.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	ok, err := repo.MarkSynced(ctx, core.KindExpense, "e1", 1)
	if err != nil || !ok {
		t.Fatalf("MarkSynced = %v, %v", ok, err)
	}
	stored, err := repo.GetExpense(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if !stored.Synced || stored.Version != 1 {
		t.Fatalf("stored = %+v", stored)
	}

	// Edit the row, then try to confirm the stale push. The confirmation
	// must miss so the new version stays pending.
	if _, err := repo.UpdateExpense(ctx, stored); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	ok, err = repo.MarkSynced(ctx, core.KindExpense, "e1", 1)
	if err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if ok {
		t.Fatalf("stale confirmation must not land")
	}
	stored, err = repo.GetExpense(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if stored.Synced || stored.Version != 2 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestMarkSyncedMissingRow(t *testing.T) {
	repo := newRepo(t)
	ok, err := repo.MarkSynced(context.Background(), core.KindExpense, "ghost", 1)
	if err != nil || ok {
		t.Fatalf("MarkSynced = %v, %v", ok, err)
	}
}

func TestMarkSyncedUnknownKind(t *testing.T) {
	repo := newRepo(t)
	if _, err := repo.MarkSynced(context.Background(), core.Kind("bogus"), "x", 1); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestUpdateAccountDefaultTransition(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.CreateAccount(ctx, core.Account{ID: "bank-main", DisplayName: "Main", Version: 1}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.CreateAccount(ctx, core.Account{ID: "bank-save", DisplayName: "Savings", Version: 1}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	updated, err := repo.UpdateAccount(ctx, core.Account{ID: "bank-save", DisplayName: "Savings", Default: true})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if !updated.Default || updated.Synced || updated.Version != 2 {
		t.Fatalf("updated = %+v", updated)
	}

	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	for _, a := range accounts {
		want := a.ID == "bank-save"
		if a.Default != want {
			t.Fatalf("account %s default = %v, want %v", a.ID, a.Default, want)
		}
	}
}

func TestSettingsAnchorsReplacedOnSave(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	// A fresh database serves an empty but readable settings record.
	fresh, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !fresh.IsZero() {
		t.Fatalf("fresh settings = %+v", fresh)
	}

	first := core.Settings{
		Currency: "EUR",
		StartingBalance: core.StartingBalance{
			SharedAsOf: core.NewDate(2024, 1, 1),
			Accounts: map[string]core.AnchorRecord{
				"cash":      {Balance: core.Money{Cents: 10000}},
				"bank-main": {Balance: core.Money{Cents: 250000}, AsOf: core.NewDate(2024, 2, 1)},
			},
		},
		SpreadsheetID: "sheet-1",
		APIKey:        "key-1",
		RelayURL:      "https://relay.example",
		RelaySecret:   "hush",
	}
	if err := repo.SaveSettings(ctx, first); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.Currency != "EUR" || got.SpreadsheetID != "sheet-1" || got.APIKey != "key-1" ||
		got.RelayURL != "https://relay.example" || got.RelaySecret != "hush" {
		t.Fatalf("settings = %+v", got)
	}
	if got.StartingBalance.SharedAsOf.String() != "2024-01-01" {
		t.Fatalf("shared as of = %v", got.StartingBalance.SharedAsOf)
	}
	if len(got.StartingBalance.Accounts) != 2 {
		t.Fatalf("anchors = %+v", got.StartingBalance.Accounts)
	}
	bank := got.StartingBalance.Accounts["bank-main"]
	if bank.Balance.Cents != 250000 || bank.AsOf.String() != "2024-02-01" {
		t.Fatalf("bank anchor = %+v", bank)
	}
	cash := got.StartingBalance.Accounts["cash"]
	if cash.Balance.Cents != 10000 || !cash.AsOf.IsZero() {
		t.Fatalf("cash anchor = %+v", cash)
	}

	// Saving again replaces the anchor set wholesale.
	second := first
	second.StartingBalance.Accounts = map[string]core.AnchorRecord{
		"cash": {Balance: core.Money{Cents: 9000}},
	}
	if err := repo.SaveSettings(ctx, second); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err = repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if len(got.StartingBalance.Accounts) != 1 || got.StartingBalance.Accounts["cash"].Balance.Cents != 9000 {
		t.Fatalf("anchors = %+v", got.StartingBalance.Accounts)
	}
}

func TestSaveSettingsFailureKeepsStoredAnchors(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	saved := core.Settings{
		Currency: "EUR",
		StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				"cash":      {Balance: core.Money{Cents: 1500}},
				"bank-main": {Balance: core.Money{Cents: 80000}, AsOf: core.NewDate(2024, 2, 1)},
			},
		},
	}
	if err := repo.SaveSettings(ctx, saved); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	// The clear-and-rewrite runs in one transaction, so a save that
	// fails partway through must not leave the anchor set emptied.
	dead, cancel := context.WithCancel(ctx)
	cancel()
	if err := repo.SaveSettings(dead, saved); err == nil {
		t.Fatalf("save with cancelled context should fail")
	}

	got, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if len(got.StartingBalance.Accounts) != 2 {
		t.Fatalf("anchors after failed save = %+v", got.StartingBalance.Accounts)
	}
	if got.StartingBalance.Accounts["bank-main"].Balance.Cents != 80000 {
		t.Fatalf("bank anchor = %+v", got.StartingBalance.Accounts["bank-main"])
	}
}

func TestBudgetsReplacedOnSave(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first := core.Budgets{
		"2024-02": {TargetIncome: core.Money{Cents: 280000}},
		"2024-03": {
			TargetIncome: core.Money{Cents: 300000},
			Allocations: map[string]core.Money{
				"rent": {Cents: 120000},
				"food": {Cents: 40000},
			},
		},
	}
	if err := repo.SaveBudgets(ctx, first); err != nil {
		t.Fatalf("SaveBudgets: %v", err)
	}

	got, err := repo.GetBudgets(ctx)
	if err != nil {
		t.Fatalf("GetBudgets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("budgets = %+v", got)
	}
	march := got["2024-03"]
	if march.TargetIncome.Cents != 300000 || march.Allocations["rent"].Cents != 120000 ||
		march.Allocations["food"].Cents != 40000 {
		t.Fatalf("march = %+v", march)
	}

	if err := repo.SaveBudgets(ctx, core.Budgets{
		"2024-04": {TargetIncome: core.Money{Cents: 310000}},
	}); err != nil {
		t.Fatalf("SaveBudgets: %v", err)
	}
	got, err = repo.GetBudgets(ctx)
	if err != nil {
		t.Fatalf("GetBudgets: %v", err)
	}
	if len(got) != 1 || got["2024-04"].TargetIncome.Cents != 310000 {
		t.Fatalf("budgets = %+v", got)
	}
}

func TestCategoriesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.SaveCategories(ctx, []string{"rent", " food ", "rent", "", "fun"}); err != nil {
		t.Fatalf("SaveCategories: %v", err)
	}
	got, err := repo.GetCategories(ctx)
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	want := []string{"rent", "food", "fun"}
	if len(got) != len(want) {
		t.Fatalf("categories = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("categories = %v, want %v", got, want)
		}
	}
}

func TestMergeAndPersistReplacesCollections(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if err := repo.CreateExpense(ctx, core.Expense{
		ID: "old", Date: core.NewDate(2024, 3, 1),
		Amount: core.Money{Cents: 100}, Category: "a", Version: 1,
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	var sawLocal bool
	err := repo.MergeAndPersist(ctx, func(local core.Snapshot) core.Snapshot {
		sawLocal = len(local.Expenses) == 1 && local.Expenses[0].ID == "old"
		return core.Snapshot{
			Expenses: []core.Expense{{
				ID: "new", Date: core.NewDate(2024, 3, 2),
				Amount: core.Money{Cents: 200}, Category: "b",
				Synced: true, Version: 1,
			}},
			Settings:   core.Settings{Currency: "USD"},
			Categories: []string{"b"},
		}
	})
	if err != nil {
		t.Fatalf("MergeAndPersist: %v", err)
	}
	if !sawLocal {
		t.Fatalf("merge callback did not receive the local snapshot")
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].ID != "new" || !snap.Expenses[0].Synced {
		t.Fatalf("expenses = %+v", snap.Expenses)
	}
	if snap.Settings.Currency != "USD" {
		t.Fatalf("settings = %+v", snap.Settings)
	}
	if len(snap.Categories) != 1 || snap.Categories[0] != "b" {
		t.Fatalf("categories = %v", snap.Categories)
	}
}

func TestLoadSnapshotEmpty(t *testing.T) {
	repo := newRepo(t)
	snap, err := repo.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Expenses) != 0 || len(snap.Incomes) != 0 ||
		len(snap.Transfers) != 0 || len(snap.Accounts) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Settings.IsZero() {
		t.Fatalf("settings = %+v", snap.Settings)
	}
}
