package memory

import (
	"context"
	"errors"
	"testing"

	"conti/internal/core"
	"conti/internal/remote"
)

func TestSeedAndFetch(t *testing.T) {
	s := New()
	s.Seed(core.Snapshot{
		Expenses: []core.Expense{{
			ID:       "e1",
			Date:     core.NewDate(2024, 3, 1),
			Amount:   core.Money{Cents: 1500},
			Category: "groceries",
		}},
		Settings:   core.Settings{Currency: "EUR"},
		Categories: []string{"groceries"},
	})

	snap, err := s.FetchSnapshot(context.Background(), remote.Credentials{})
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].ID != "e1" {
		t.Fatalf("expenses = %+v", snap.Expenses)
	}
	if snap.Settings.Currency != "EUR" {
		t.Fatalf("currency = %q", snap.Settings.Currency)
	}
	if len(snap.Categories) != 1 {
		t.Fatalf("categories = %v", snap.Categories)
	}
}

func TestMarkDeletedHidesRows(t *testing.T) {
	ctx := context.Background()
	s := New()
	rows := []remote.Row{
		remote.EncodeExpense(core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 1), Amount: core.Money{Cents: 100}}),
		remote.EncodeExpense(core.Expense{ID: "e2", Date: core.NewDate(2024, 3, 2), Amount: core.Money{Cents: 200}}),
	}
	if err := s.AppendEntities(ctx, remote.Credentials{}, core.KindExpense, rows); err != nil {
		t.Fatalf("AppendEntities: %v", err)
	}
	if err := s.MarkDeleted(ctx, remote.Credentials{}, core.KindExpense, "e1"); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}

	snap, err := s.FetchSnapshot(ctx, remote.Credentials{})
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].ID != "e2" {
		t.Fatalf("expenses = %+v, want only e2", snap.Expenses)
	}
}

func TestMarkDeletedMissingIDIsNoOp(t *testing.T) {
	s := New()
	if err := s.MarkDeleted(context.Background(), remote.Credentials{}, core.KindExpense, "ghost"); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
}

func TestSetError(t *testing.T) {
	boom := errors.New("boom")
	s := New()
	s.SetError(boom)

	if _, err := s.FetchSnapshot(context.Background(), remote.Credentials{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if err := s.AppendEntities(context.Background(), remote.Credentials{}, core.KindExpense, []remote.Row{{ID: "x"}}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	s.SetError(nil)
	if _, err := s.FetchSnapshot(context.Background(), remote.Credentials{}); err != nil {
		t.Fatalf("err = %v after clearing", err)
	}
}

func TestStatsCountCalls(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.FetchSnapshot(ctx, remote.Credentials{})
	_ = s.AppendEntities(ctx, remote.Credentials{}, core.KindExpense, nil)
	_ = s.MarkDeleted(ctx, remote.Credentials{}, core.KindExpense, "e1")
	_ = s.SaveConfig(ctx, remote.Credentials{}, core.Settings{})
	_ = s.SaveBudgets(ctx, remote.Credentials{}, nil)
	_ = s.SaveCategories(ctx, remote.Credentials{}, nil)

	got := s.Stats()
	want := Stats{Fetches: 1, Appends: 1, Deletes: 1, Saves: 3}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestSaveCategoriesReplacesSection(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveCategories(ctx, remote.Credentials{}, []string{"a", "b"})
	_ = s.SaveCategories(ctx, remote.Credentials{}, []string{"c"})

	snap, err := s.FetchSnapshot(ctx, remote.Credentials{})
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(snap.Categories) != 1 || snap.Categories[0] != "c" {
		t.Fatalf("categories = %v, want [c]", snap.Categories)
	}
}
