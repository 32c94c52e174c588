package remote

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"conti/internal/core"
)

func TestExpenseRowRoundTrip(t *testing.T) {
	e := core.Expense{
		ID:         "e1",
		Date:       core.NewDate(2024, 3, 14),
		Time:       "09:30",
		Amount:     core.Money{Cents: 1250},
		Category:   "groceries",
		Note:       "market",
		AccountRef: "cash",
		Timestamp:  time.Date(2024, 3, 14, 9, 31, 0, 0, time.UTC),
	}

	got, ok := DecodeExpense(EncodeExpense(e))
	if !ok {
		t.Fatalf("decode rejected a well-formed row")
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestDecodeExpenseRejectsMalformed(t *testing.T) {
	good := EncodeExpense(core.Expense{
		ID:     "e1",
		Date:   core.NewDate(2024, 3, 14),
		Amount: core.Money{Cents: 100},
	})

	cases := []Row{
		{ID: "", Fields: good.Fields},
		{ID: "e1", Fields: []string{"not-a-date", "", "100", "", "", "", ""}},
		{ID: "e1", Fields: []string{"2024-03-14", "", "abc", "", "", "", ""}},
		{ID: "e1", Fields: []string{"2024-03-14", "", "0", "", "", "", ""}},
		{ID: "e1", Fields: []string{"2024-03-14", "", "-50", "", "", "", ""}},
		{ID: "e1"},
	}
	for i, row := range cases {
		if _, ok := DecodeExpense(row); ok {
			t.Fatalf("case %d: expected rejection for %+v", i, row)
		}
	}

	if _, ok := DecodeExpense(good); !ok {
		t.Fatalf("control row rejected")
	}
}

func TestDecodeExpenseToleratesShortRows(t *testing.T) {
	e, ok := DecodeExpense(Row{ID: "e1", Fields: []string{"2024-03-14", "", "100"}})
	if !ok {
		t.Fatalf("short row rejected")
	}
	if e.Category != "" || e.Note != "" || e.AccountRef != "" {
		t.Fatalf("missing columns should decode empty, got %+v", e)
	}
	if !e.Timestamp.IsZero() {
		t.Fatalf("missing created column should decode zero, got %v", e.Timestamp)
	}
}

func TestTransferRowRoundTrip(t *testing.T) {
	tr := core.Transfer{
		ID:            "t1",
		Date:          core.NewDate(2024, 4, 1),
		Amount:        core.Money{Cents: 20000},
		FromAccountID: "cash",
		ToAccountID:   "bank-main",
		Note:          "deposit",
	}

	got, ok := DecodeTransfer(EncodeTransfer(tr))
	if !ok {
		t.Fatalf("decode rejected a well-formed row")
	}
	if !reflect.DeepEqual(got, tr) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tr)
	}
}

func TestAccountRowRoundTrip(t *testing.T) {
	cases := []core.Account{
		{ID: "bank-main", DisplayName: "Main", Default: true},
		{ID: "bank-save", DisplayName: "Savings"},
	}
	for i, a := range cases {
		got, ok := DecodeAccount(EncodeAccount(a))
		if !ok {
			t.Fatalf("case %d: decode rejected a well-formed row", i)
		}
		if !reflect.DeepEqual(got, a) {
			t.Fatalf("case %d: round trip mismatch: got %+v, want %+v", i, got, a)
		}
	}

	if _, ok := DecodeAccount(Row{ID: "bank-main"}); ok {
		t.Fatalf("account without a display name should be rejected")
	}
}

func TestDedupeByIDKeepsLastOccurrence(t *testing.T) {
	rows := []Row{
		{ID: "a", Fields: []string{"first"}},
		{ID: "b", Fields: []string{"only"}},
		{ID: "", Fields: []string{"junk"}},
		{ID: "a", Fields: []string{"second"}},
	}

	got := dedupeByID(rows)
	want := []Row{
		{ID: "a", Fields: []string{"second"}},
		{ID: "b", Fields: []string{"only"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestConfigRowsRoundTrip(t *testing.T) {
	s := core.Settings{
		Currency: "EUR",
		StartingBalance: core.StartingBalance{
			SharedAsOf: core.NewDate(2024, 1, 1),
			Accounts: map[string]core.AnchorRecord{
				"cash":      {Balance: core.Money{Cents: 10000}, AsOf: core.NewDate(2024, 1, 1)},
				"bank-main": {Balance: core.Money{Cents: 250000}},
			},
		},
	}

	got := DecodeConfig(EncodeConfig(s))
	if !reflect.DeepEqual(got, s) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
	}
}

func TestEncodeConfigOmitsSecrets(t *testing.T) {
	s := core.Settings{
		Currency:      "EUR",
		SpreadsheetID: "sheet-123",
		APIKey:        "key-456",
		RelayURL:      "https://relay.example",
		RelaySecret:   "hunter2",
	}

	for _, row := range EncodeConfig(s) {
		joined := row.ID + " " + strings.Join(row.Fields, " ")
		for _, secret := range []string{"sheet-123", "key-456", "relay.example", "hunter2"} {
			if strings.Contains(joined, secret) {
				t.Fatalf("config row %+v leaks %q", row, secret)
			}
		}
	}

	decoded := DecodeConfig(EncodeConfig(s))
	if decoded.SpreadsheetID != "" || decoded.APIKey != "" || decoded.RelayURL != "" || decoded.RelaySecret != "" {
		t.Fatalf("decoded settings carry secrets: %+v", decoded)
	}
}

func TestDecodeConfigIgnoresJunk(t *testing.T) {
	rows := []Row{
		{ID: "currency", Fields: []string{"USD"}},
		{ID: "mystery", Fields: []string{"???"}},
		{ID: "anchor:", Fields: []string{"100", ""}},
		{ID: "anchor:cash", Fields: []string{"not-a-number", ""}},
		{ID: "anchor:cash", Fields: []string{"5000", "2024-02-01"}},
	}

	got := DecodeConfig(rows)
	if got.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", got.Currency)
	}
	if len(got.StartingBalance.Accounts) != 1 {
		t.Fatalf("accounts = %+v, want exactly the cash anchor", got.StartingBalance.Accounts)
	}
	rec := got.StartingBalance.Accounts["cash"]
	if rec.Balance.Cents != 5000 || rec.AsOf.String() != "2024-02-01" {
		t.Fatalf("cash anchor = %+v", rec)
	}
}

func TestBudgetRowsRoundTrip(t *testing.T) {
	b := core.Budgets{
		"2024-03": {
			TargetIncome: core.Money{Cents: 300000},
			Allocations: map[string]core.Money{
				"groceries": {Cents: 40000},
				"rent":      {Cents: 120000},
			},
		},
		"2024-04": {
			Allocations: map[string]core.Money{"travel": {Cents: 50000}},
		},
	}

	got := DecodeBudgets(EncodeBudgets(b))
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, b)
	}
}

func TestDecodeBudgetsAccumulatesMonthRows(t *testing.T) {
	rows := []Row{
		{ID: "2024-03", Fields: []string{"", "300000"}},
		{ID: "2024-03", Fields: []string{"groceries", "40000"}},
		{ID: "2024-03", Fields: []string{"rent", "bad"}},
		{ID: "", Fields: []string{"orphan", "100"}},
	}

	got := DecodeBudgets(rows)
	mb, ok := got["2024-03"]
	if !ok {
		t.Fatalf("month missing: %+v", got)
	}
	if mb.TargetIncome.Cents != 300000 {
		t.Fatalf("target income = %d", mb.TargetIncome.Cents)
	}
	if len(mb.Allocations) != 1 || mb.Allocations["groceries"].Cents != 40000 {
		t.Fatalf("allocations = %+v", mb.Allocations)
	}
}

func TestCategoryRowsRoundTrip(t *testing.T) {
	rows := EncodeCategories([]string{"groceries", "rent"})
	rows = append(rows, Row{ID: "  groceries  "}, Row{ID: ""})

	got := DecodeCategories(rows)
	want := []string{"groceries", "rent"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeCollections(t *testing.T) {
	c := Collections{
		Expenses: []Row{
			EncodeExpense(core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 1), Amount: core.Money{Cents: 100}, Category: "misc"}),
			{ID: "broken", Fields: []string{"nope"}},
			EncodeExpense(core.Expense{ID: "e1", Date: core.NewDate(2024, 3, 2), Amount: core.Money{Cents: 200}, Category: "misc"}),
		},
		Incomes: []Row{
			EncodeIncome(core.Income{ID: "i1", Date: core.NewDate(2024, 3, 5), Amount: core.Money{Cents: 5000}}),
		},
		Transfers: []Row{
			EncodeTransfer(core.Transfer{ID: "t1", Date: core.NewDate(2024, 3, 6), Amount: core.Money{Cents: 700}, FromAccountID: "cash", ToAccountID: "bank-main"}),
		},
		Accounts: []Row{
			EncodeAccount(core.Account{ID: "bank-main", DisplayName: "Main", Default: true}),
		},
		Config:     []Row{{ID: "currency", Fields: []string{"EUR"}}},
		Budgets:    []Row{{ID: "2024-03", Fields: []string{"", "1000"}}},
		Categories: []Row{{ID: "misc"}},
	}

	snap := DecodeCollections(c)

	if len(snap.Expenses) != 1 {
		t.Fatalf("expenses = %+v, want the deduped survivor only", snap.Expenses)
	}
	if got := snap.Expenses[0]; got.Amount.Cents != 200 || got.Date.String() != "2024-03-02" {
		t.Fatalf("dedupe kept the wrong row: %+v", got)
	}
	if len(snap.Incomes) != 1 || len(snap.Transfers) != 1 || len(snap.Accounts) != 1 {
		t.Fatalf("unexpected collection sizes: %+v", snap)
	}
	if snap.Settings.Currency != "EUR" {
		t.Fatalf("settings = %+v", snap.Settings)
	}
	if snap.Budgets["2024-03"].TargetIncome.Cents != 1000 {
		t.Fatalf("budgets = %+v", snap.Budgets)
	}
	if !reflect.DeepEqual(snap.Categories, []string{"misc"}) {
		t.Fatalf("categories = %v", snap.Categories)
	}
}

func TestEncodeRows(t *testing.T) {
	snap := core.Snapshot{
		Expenses:  []core.Expense{{ID: "e1", Date: core.NewDate(2024, 3, 1), Amount: core.Money{Cents: 100}}},
		Incomes:   []core.Income{{ID: "i1", Date: core.NewDate(2024, 3, 2), Amount: core.Money{Cents: 200}}},
		Transfers: []core.Transfer{{ID: "t1", Date: core.NewDate(2024, 3, 3), Amount: core.Money{Cents: 300}, FromAccountID: "cash", ToAccountID: "bank-main"}},
		Accounts:  []core.Account{{ID: "bank-main", DisplayName: "Main"}},
	}

	cases := []struct {
		kind   core.Kind
		wantID string
	}{
		{core.KindExpense, "e1"},
		{core.KindIncome, "i1"},
		{core.KindTransfer, "t1"},
		{core.KindAccount, "bank-main"},
	}
	for i, tc := range cases {
		rows := EncodeRows(tc.kind, snap)
		if len(rows) != 1 || rows[0].ID != tc.wantID {
			t.Fatalf("case %d: rows = %+v, want single row %q", i, rows, tc.wantID)
		}
	}
}
