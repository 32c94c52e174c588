package services

import (
	"testing"

	"conti/internal/core"
)

func cents(n int64) core.Money { return core.Money{Cents: n} }

func TestBalanceFromCashAnchor(t *testing.T) {
	// anchor 100.00 cash as of Jan 1, spend 30.00, receive 50.00
	snap := core.Snapshot{
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(10000), AsOf: core.NewDate(2024, 1, 1)},
			},
		}},
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2024, 1, 5), Amount: cents(3000), Category: "food", AccountRef: core.CashAccountID},
		},
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 1, 10), Amount: cents(5000), AccountRef: core.CashAccountID},
		},
	}

	rb := Balance(snap)
	if rb.Cash != 12000 {
		t.Fatalf("cash expected 12000, got %d", rb.Cash)
	}
}

func TestBalanceWithoutAnchorSumsEverything(t *testing.T) {
	// no anchor entry at all: balance is the plain signed sum
	snap := core.Snapshot{
		Accounts: []core.Account{{ID: "a1", DisplayName: "Main", Default: true}},
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2019, 5, 1), Amount: cents(700), Category: "c", AccountRef: "a1"},
		},
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2018, 2, 1), Amount: cents(1000), AccountRef: "a1"},
			{ID: "i2", Date: core.NewDate(2024, 2, 1), Amount: cents(200), AccountRef: "a1"},
		},
	}

	rb := Balance(snap)
	if got := rb.PerAccount["a1"]; got != 500 {
		t.Fatalf("a1 expected 500, got %d", got)
	}
	if rb.Total != 500 {
		t.Fatalf("total expected 500, got %d", rb.Total)
	}
}

func TestBalanceTransferLegsGateIndependently(t *testing.T) {
	// transfer dated after the source anchor but before the destination
	// anchor: subtracted from source, never added to destination
	snap := core.Snapshot{
		Accounts: []core.Account{{ID: "a1", DisplayName: "Main", Default: true}},
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(5000), AsOf: core.NewDate(2024, 1, 1)},
				"a1":               {Balance: cents(9000), AsOf: core.NewDate(2024, 2, 1)},
			},
		}},
		Transfers: []core.Transfer{
			{ID: "t1", Date: core.NewDate(2024, 1, 15), Amount: cents(2000), FromAccountID: core.CashAccountID, ToAccountID: "a1"},
		},
	}

	rb := Balance(snap)
	if rb.Cash != 3000 {
		t.Fatalf("cash expected 3000, got %d", rb.Cash)
	}
	if got := rb.PerAccount["a1"]; got != 9000 {
		t.Fatalf("a1 expected untouched 9000, got %d", got)
	}
}

func TestBalanceEntriesBeforeAnchorIgnored(t *testing.T) {
	snap := core.Snapshot{
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(1000), AsOf: core.NewDate(2024, 6, 1)},
			},
		}},
		Expenses: []core.Expense{
			{ID: "old", Date: core.NewDate(2024, 5, 31), Amount: cents(999), Category: "c", AccountRef: core.CashAccountID},
			{ID: "boundary", Date: core.NewDate(2024, 6, 1), Amount: cents(100), Category: "c", AccountRef: core.CashAccountID},
		},
	}
	rb := Balance(snap)
	if rb.Cash != 900 {
		t.Fatalf("cash expected 900 (anchor-day entry counts, earlier does not), got %d", rb.Cash)
	}
}

func TestBalanceUnknownRefFallsBackToDefaultBank(t *testing.T) {
	snap := core.Snapshot{
		Accounts: []core.Account{
			{ID: "a1", DisplayName: "Main", Default: true},
			{ID: "a2", DisplayName: "Savings"},
		},
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 1, 1), Amount: cents(1500), AccountRef: "gone"},
		},
	}
	rb := Balance(snap)
	if got := rb.PerAccount["a1"]; got != 1500 {
		t.Fatalf("fallback income expected on default account, got a1=%d", got)
	}
	if got := rb.PerAccount["a2"]; got != 0 {
		t.Fatalf("a2 expected 0, got %d", got)
	}
}

func TestBalanceSyntheticBucketWhenNoBanks(t *testing.T) {
	snap := core.Snapshot{
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 1, 1), Amount: cents(2500), AccountRef: "bank"},
		},
	}
	rb := Balance(snap)
	if got, ok := rb.PerAccount[core.BankBucketID]; !ok || got != 2500 {
		t.Fatalf("expected synthetic bucket 2500, got %v (present=%v)", got, ok)
	}
}

func TestBalanceOverdraftNotClamped(t *testing.T) {
	snap := core.Snapshot{
		Expenses: []core.Expense{
			{ID: "e1", Date: core.NewDate(2024, 1, 2), Amount: cents(4200), Category: "c", AccountRef: core.CashAccountID},
		},
	}
	rb := Balance(snap)
	if rb.Cash != -4200 {
		t.Fatalf("expected -4200, got %d", rb.Cash)
	}
}

func TestBalanceAsOfCutoff(t *testing.T) {
	snap := core.Snapshot{
		Incomes: []core.Income{
			{ID: "i1", Date: core.NewDate(2024, 3, 1), Amount: cents(1000), AccountRef: core.CashAccountID},
			{ID: "i2", Date: core.NewDate(2024, 3, 10), Amount: cents(500), AccountRef: core.CashAccountID},
		},
	}
	rb := BalanceAsOf(snap, core.NewDate(2024, 3, 1))
	if rb.Cash != 1000 {
		t.Fatalf("cutoff balance expected 1000, got %d", rb.Cash)
	}
	rb = Balance(snap)
	if rb.Cash != 1500 {
		t.Fatalf("full balance expected 1500, got %d", rb.Cash)
	}
}

func TestBalanceTotalSumsAllAccounts(t *testing.T) {
	snap := core.Snapshot{
		Accounts: []core.Account{{ID: "a1", DisplayName: "Main", Default: true}},
		Settings: core.Settings{StartingBalance: core.StartingBalance{
			Accounts: map[string]core.AnchorRecord{
				core.CashAccountID: {Balance: cents(100)},
				"a1":               {Balance: cents(200)},
			},
		}},
	}
	rb := Balance(snap)
	if rb.Total != 300 {
		t.Fatalf("total expected 300, got %d", rb.Total)
	}
	if rb.ForAccount(core.CashAccountID) != 100 || rb.ForAccount("a1") != 200 {
		t.Fatalf("ForAccount lookup broken: %+v", rb)
	}
}
