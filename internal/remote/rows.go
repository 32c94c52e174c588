package remote

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// Row is one remote record: the id plus its positional columns. Both
// transports speak this shape; the tabular backend stores exactly these
// columns (plus its own tombstone marker, which never reaches here).
type Row struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

// Collections is the raw tombstone-filtered pull, one row list per
// section, before decoding into domain types.
type Collections struct {
	Expenses   []Row `json:"expenses"`
	Incomes    []Row `json:"incomes"`
	Transfers  []Row `json:"transfers"`
	Accounts   []Row `json:"accounts"`
	Config     []Row `json:"config"`
	Budgets    []Row `json:"budgets"`
	Categories []Row `json:"categories"`
}

// Entity column layouts, after the id column:
//
//	expense/income: date, time, cents, category, note, account, created
//	transfer:       date, time, cents, from, to, note, created
//	account:        name, default
//
// Config rows are keyed ("currency", "shared_as_of", "anchor:<account>"),
// budget rows hold month/category/cents (empty category = income target),
// category rows are bare names.

func EncodeExpense(e core.Expense) Row {
	return Row{ID: e.ID, Fields: []string{
		dateField(e.Date), string(e.Time), centsField(e.Amount.Cents),
		e.Category, e.Note, e.AccountRef, instantField(e.Timestamp),
	}}
}

func DecodeExpense(r Row) (core.Expense, bool) {
	date, cents, ok := entityBasics(r)
	if !ok {
		return core.Expense{}, false
	}
	return core.Expense{
		ID:         r.ID,
		Date:       date,
		Time:       core.ClockTime(field(r, 1)),
		Amount:     core.Money{Cents: cents},
		Category:   field(r, 3),
		Note:       field(r, 4),
		AccountRef: field(r, 5),
		Timestamp:  parseInstant(field(r, 6)),
	}, true
}

func EncodeIncome(in core.Income) Row {
	return Row{ID: in.ID, Fields: []string{
		dateField(in.Date), string(in.Time), centsField(in.Amount.Cents),
		in.Category, in.Note, in.AccountRef, instantField(in.Timestamp),
	}}
}

func DecodeIncome(r Row) (core.Income, bool) {
	date, cents, ok := entityBasics(r)
	if !ok {
		return core.Income{}, false
	}
	return core.Income{
		ID:         r.ID,
		Date:       date,
		Time:       core.ClockTime(field(r, 1)),
		Amount:     core.Money{Cents: cents},
		Category:   field(r, 3),
		Note:       field(r, 4),
		AccountRef: field(r, 5),
		Timestamp:  parseInstant(field(r, 6)),
	}, true
}

func EncodeTransfer(tr core.Transfer) Row {
	return Row{ID: tr.ID, Fields: []string{
		dateField(tr.Date), string(tr.Time), centsField(tr.Amount.Cents),
		tr.FromAccountID, tr.ToAccountID, tr.Note, instantField(tr.Timestamp),
	}}
}

func DecodeTransfer(r Row) (core.Transfer, bool) {
	date, cents, ok := entityBasics(r)
	if !ok {
		return core.Transfer{}, false
	}
	return core.Transfer{
		ID:            r.ID,
		Date:          date,
		Time:          core.ClockTime(field(r, 1)),
		Amount:        core.Money{Cents: cents},
		FromAccountID: field(r, 3),
		ToAccountID:   field(r, 4),
		Note:          field(r, 5),
		Timestamp:     parseInstant(field(r, 6)),
	}, true
}

func EncodeAccount(a core.Account) Row {
	def := ""
	if a.Default {
		def = "1"
	}
	return Row{ID: a.ID, Fields: []string{a.DisplayName, def}}
}

func DecodeAccount(r Row) (core.Account, bool) {
	if r.ID == "" || field(r, 0) == "" {
		return core.Account{}, false
	}
	return core.Account{
		ID:          r.ID,
		DisplayName: field(r, 0),
		Default:     field(r, 1) == "1",
	}, true
}

// EncodeRows converts one unsynced batch into wire rows for its kind.
func EncodeRows(kind core.Kind, snap core.Snapshot) []Row {
	var rows []Row
	switch kind {
	case core.KindExpense:
		for _, e := range snap.Expenses {
			rows = append(rows, EncodeExpense(e))
		}
	case core.KindIncome:
		for _, in := range snap.Incomes {
			rows = append(rows, EncodeIncome(in))
		}
	case core.KindTransfer:
		for _, tr := range snap.Transfers {
			rows = append(rows, EncodeTransfer(tr))
		}
	case core.KindAccount:
		for _, a := range snap.Accounts {
			rows = append(rows, EncodeAccount(a))
		}
	}
	return rows
}

const (
	configCurrency   = "currency"
	configSharedAsOf = "shared_as_of"
	anchorKeyPrefix  = "anchor:"
)

// EncodeConfig renders the non-secret settings as key rows. Credentials
// never appear in the remote config section.
func EncodeConfig(s core.Settings) []Row {
	rows := []Row{
		{ID: configCurrency, Fields: []string{s.Currency}},
		{ID: configSharedAsOf, Fields: []string{dateField(s.StartingBalance.SharedAsOf)}},
	}
	for _, id := range sortedAnchorIDs(s.StartingBalance.Accounts) {
		rec := s.StartingBalance.Accounts[id]
		rows = append(rows, Row{
			ID:     anchorKeyPrefix + id,
			Fields: []string{centsField(rec.Balance.Cents), dateField(rec.AsOf)},
		})
	}
	return rows
}

// DecodeConfig rebuilds settings from key rows. Unknown keys are
// ignored; secret fields are never populated from remote content.
func DecodeConfig(rows []Row) core.Settings {
	var s core.Settings
	for _, r := range rows {
		switch {
		case r.ID == configCurrency:
			s.Currency = field(r, 0)
		case r.ID == configSharedAsOf:
			s.StartingBalance.SharedAsOf = parseDate(field(r, 0))
		case strings.HasPrefix(r.ID, anchorKeyPrefix):
			id := strings.TrimPrefix(r.ID, anchorKeyPrefix)
			if id == "" {
				continue
			}
			cents, err := strconv.ParseInt(field(r, 0), 10, 64)
			if err != nil {
				continue
			}
			if s.StartingBalance.Accounts == nil {
				s.StartingBalance.Accounts = make(map[string]core.AnchorRecord)
			}
			s.StartingBalance.Accounts[id] = core.AnchorRecord{
				Balance: core.Money{Cents: cents},
				AsOf:    parseDate(field(r, 1)),
			}
		}
	}
	return s
}

// EncodeBudgets renders budgets as month rows; an empty category column
// carries the month's income target.
func EncodeBudgets(b core.Budgets) []Row {
	var rows []Row
	for _, month := range sortedMonths(b) {
		mb := b[month]
		rows = append(rows, Row{ID: month, Fields: []string{"", centsField(mb.TargetIncome.Cents)}})
		for _, cat := range sortedAllocations(mb.Allocations) {
			rows = append(rows, Row{ID: month, Fields: []string{cat, centsField(mb.Allocations[cat].Cents)}})
		}
	}
	return rows
}

func DecodeBudgets(rows []Row) core.Budgets {
	budgets := make(core.Budgets)
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		cents, err := strconv.ParseInt(field(r, 1), 10, 64)
		if err != nil {
			continue
		}
		mb, ok := budgets[r.ID]
		if !ok {
			mb = core.MonthBudget{Allocations: make(map[string]core.Money)}
		}
		if cat := field(r, 0); cat == "" {
			mb.TargetIncome = core.Money{Cents: cents}
		} else {
			mb.Allocations[cat] = core.Money{Cents: cents}
		}
		budgets[r.ID] = mb
	}
	if len(budgets) == 0 {
		return nil
	}
	return budgets
}

func EncodeCategories(cats []string) []Row {
	rows := make([]Row, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, Row{ID: c})
	}
	return rows
}

func DecodeCategories(rows []Row) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.ID)
	}
	return core.NormalizeCategories(names)
}

// DecodeCollections turns a raw pull into a snapshot. Entity sections
// dedupe by id keeping the last occurrence, so a re-appended edit
// shadows the original row. Malformed rows are skipped, not fatal.
func DecodeCollections(c Collections) core.Snapshot {
	var snap core.Snapshot
	for _, r := range dedupeByID(c.Expenses) {
		if e, ok := DecodeExpense(r); ok {
			snap.Expenses = append(snap.Expenses, e)
		}
	}
	for _, r := range dedupeByID(c.Incomes) {
		if in, ok := DecodeIncome(r); ok {
			snap.Incomes = append(snap.Incomes, in)
		}
	}
	for _, r := range dedupeByID(c.Transfers) {
		if tr, ok := DecodeTransfer(r); ok {
			snap.Transfers = append(snap.Transfers, tr)
		}
	}
	for _, r := range dedupeByID(c.Accounts) {
		if a, ok := DecodeAccount(r); ok {
			snap.Accounts = append(snap.Accounts, a)
		}
	}
	snap.Settings = DecodeConfig(c.Config)
	snap.Budgets = DecodeBudgets(c.Budgets)
	snap.Categories = DecodeCategories(c.Categories)
	return snap
}

// dedupeByID keeps one row per id, the last one seen, preserving the
// position of each id's first appearance.
func dedupeByID(rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}
	pos := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		if i, seen := pos[r.ID]; seen {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func entityBasics(r Row) (core.Date, int64, bool) {
	if r.ID == "" {
		return core.Date{}, 0, false
	}
	date := parseDate(field(r, 0))
	if date.IsZero() {
		return core.Date{}, 0, false
	}
	cents, err := strconv.ParseInt(field(r, 2), 10, 64)
	if err != nil || cents <= 0 {
		return core.Date{}, 0, false
	}
	return date, cents, true
}

func field(r Row, i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

func dateField(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func centsField(cents int64) string {
	return strconv.FormatInt(cents, 10)
}

func instantField(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Map iteration order is random; encode output must be deterministic
// for the clear-and-rewrite saves, so keys are sorted first.

func sortedAnchorIDs(m map[string]core.AnchorRecord) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedMonths(b core.Budgets) []string {
	months := make([]string, 0, len(b))
	for m := range b {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

func sortedAllocations(m map[string]core.Money) []string {
	cats := make([]string, 0, len(m))
	for c := range m {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
