package services

import (
	"testing"

	"conti/internal/core"
)

func TestShortfallFutureExpenseOverdraws(t *testing.T) {
	// cash holds 1000 today; a 1500 expense lands on the 5th, a 1000
	// income on the 10th (too late to matter for the 5th)
	snap := core.Snapshot{
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(1000), AsOf: core.NewDate(2024, 1, 1)},
			},
		}},
		Expenses: []core.Expense{
			{ID: "e-future", Date: core.NewDate(2024, 3, 5), Amount: cents(1500), Category: "rent", AccountRef: core.CashAccountID},
		},
		Incomes: []core.Income{
			{ID: "i-future", Date: core.NewDate(2024, 3, 10), Amount: cents(1000), AccountRef: core.CashAccountID},
		},
	}

	warnings := Shortfalls(snap, core.NewDate(2024, 3, 1))
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", warnings)
	}
	w := warnings[0]
	if w.TransactionID != "e-future" || w.AccountID != core.CashAccountID {
		t.Fatalf("warning keyed wrong: %+v", w)
	}
	if w.ProjectedBalance != -500 || w.Shortfall != 500 {
		t.Fatalf("expected projected -500 shortfall 500, got %+v", w)
	}
	if !w.Date.Equal(core.NewDate(2024, 3, 5).Time) {
		t.Fatalf("warning date wrong: %v", w.Date)
	}

	idx := WarningIndex(warnings)
	if _, ok := idx["e-future"]; !ok {
		t.Fatalf("warning not indexed by transaction id")
	}
	if _, ok := idx["i-future"]; ok {
		t.Fatalf("income must never warn")
	}
}

func TestShortfallIncomeBeforeExpenseCovers(t *testing.T) {
	snap := core.Snapshot{
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(1000), AsOf: core.NewDate(2024, 1, 1)},
			},
		}},
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2024, 3, 10), Amount: cents(1500), Category: "rent", AccountRef: core.CashAccountID},
		},
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 3, 5), Amount: cents(1000), AccountRef: core.CashAccountID},
		},
	}
	if warnings := Shortfalls(snap, core.NewDate(2024, 3, 1)); len(warnings) != 0 {
		t.Fatalf("income on the 5th covers the 10th, got %+v", warnings)
	}
}

func TestShortfallTransferSourceLegWarns(t *testing.T) {
	snap := core.Snapshot{
		Accounts: []core.Account{{ID: "a1", DisplayName: "Main", Default: true}},
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(500), AsOf: core.NewDate(2024, 1, 1)},
			},
		}},
		Transfers: []core.Transfer{
			{ID: "t1", Date: core.NewDate(2024, 3, 7), Amount: cents(800), FromAccountID: core.CashAccountID, ToAccountID: "a1"},
		},
	}

	warnings := Shortfalls(snap, core.NewDate(2024, 3, 1))
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", warnings)
	}
	w := warnings[0]
	if w.TransactionID != "t1" || w.AccountID != core.CashAccountID || w.ProjectedBalance != -300 {
		t.Fatalf("source leg warning wrong: %+v", w)
	}
	// destination leg credited even though the source overdrew
	if base := Balance(snap); base.PerAccount["a1"] != 800 {
		t.Fatalf("destination leg expected 800, got %d", base.PerAccount["a1"])
	}
}

func TestShortfallReplayOrdersTimedBeforeUntimed(t *testing.T) {
	// same day: the 09:00 income must land before the untimed expense,
	// so no overdraft occurs
	snap := core.Snapshot{
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 3, 5), Time: "09:00", Amount: cents(1000), AccountRef: core.CashAccountID},
		},
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2024, 3, 5), Amount: cents(800), Category: "c", AccountRef: core.CashAccountID},
		},
	}
	if warnings := Shortfalls(snap, core.NewDate(2024, 3, 1)); len(warnings) != 0 {
		t.Fatalf("timed income should replay first, got %+v", warnings)
	}

	// flip the times: the untimed income now replays after the 08:00
	// expense, which therefore overdraws
	snap.Incomes[0].Time = ""
	snap.Expenses[0].Time = "08:00"
	warnings := Shortfalls(snap, core.NewDate(2024, 3, 1))
	if len(warnings) != 1 || warnings[0].TransactionID != "e1" {
		t.Fatalf("expected e1 to warn, got %+v", warnings)
	}
}

func TestShortfallClockTimeOrderWithinDay(t *testing.T) {
	snap := core.Snapshot{
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 3, 5), Time: "10:00", Amount: cents(500), AccountRef: core.CashAccountID},
		},
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2024, 3, 5), Time: "11:30", Amount: cents(400), Category: "c", AccountRef: core.CashAccountID},
		},
	}
	if warnings := Shortfalls(snap, core.NewDate(2024, 3, 4)); len(warnings) != 0 {
		t.Fatalf("10:00 income precedes 11:30 expense, got %+v", warnings)
	}
}

func TestShortfallIgnoresPastAndToday(t *testing.T) {
	snap := core.Snapshot{
		Expenses: []core.Expense{
			{ID: "today", Date: core.NewDate(2024, 3, 1), Amount: cents(100), Category: "c", AccountRef: core.CashAccountID},
			{ID: "past", Date: core.NewDate(2024, 2, 1), Amount: cents(100), Category: "c", AccountRef: core.CashAccountID},
		},
	}
	// both already count in the base balance; neither replays
	warnings := Shortfalls(snap, core.NewDate(2024, 3, 1))
	if len(warnings) != 0 {
		t.Fatalf("nothing scheduled after today, got %+v", warnings)
	}
}
