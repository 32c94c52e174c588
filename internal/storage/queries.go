package storage

import (
	"context"
	"database/sql"
	"time"

	"conti/internal/core"
)

// DBTX is the minimal database surface the query layer runs against,
// satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the raw SQL operations. It carries no locking or
// business rules; Repository layers those on top.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to an open transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Dates are stored as YYYY-MM-DD text, instants as RFC3339 text; empty
// text round-trips to the zero value.

func encodeDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func decodeDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func encodeInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// --- expenses ---

const expenseColumns = `id, entry_date, entry_time, amount_cents, category, note, account_ref, synced, version, created_at`

func (q *Queries) InsertExpense(ctx context.Context, e core.Expense) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, encodeDate(e.Date), string(e.Time), e.Amount.Cents, e.Category, e.Note,
		e.AccountRef, boolToInt(e.Synced), e.Version, encodeInstant(e.Timestamp))
	return err
}

func (q *Queries) UpdateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET entry_date = ?, entry_time = ?, amount_cents = ?, category = ?,
		 note = ?, account_ref = ?, synced = ?, version = ? WHERE id = ?`,
		encodeDate(e.Date), string(e.Time), e.Amount.Cents, e.Category, e.Note,
		e.AccountRef, boolToInt(e.Synced), e.Version, e.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteExpense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllExpenses(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM expenses`)
	return err
}

func (q *Queries) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	return scanExpense(row)
}

func (q *Queries) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY entry_date DESC, created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkExpenseSynced flips the synced flag only when the stored version
// still matches the pushed one. Returns the number of rows updated; zero
// means an edit landed mid-push and the row stays pending.
func (q *Queries) MarkExpenseSynced(ctx context.Context, id string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET synced = 1 WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                   core.Expense
		date, clock, stamp  string
		synced              int64
	)
	if err := row.Scan(&e.ID, &date, &clock, &e.Amount.Cents, &e.Category, &e.Note,
		&e.AccountRef, &synced, &e.Version, &stamp); err != nil {
		return core.Expense{}, err
	}
	e.Date = decodeDate(date)
	e.Time = core.ClockTime(clock)
	e.Synced = synced != 0
	e.Timestamp = decodeInstant(stamp)
	return e, nil
}

// --- incomes ---

const incomeColumns = expenseColumns

func (q *Queries) InsertIncome(ctx context.Context, in core.Income) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO incomes (`+incomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, encodeDate(in.Date), string(in.Time), in.Amount.Cents, in.Category, in.Note,
		in.AccountRef, boolToInt(in.Synced), in.Version, encodeInstant(in.Timestamp))
	return err
}

func (q *Queries) UpdateIncome(ctx context.Context, in core.Income) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE incomes SET entry_date = ?, entry_time = ?, amount_cents = ?, category = ?,
		 note = ?, account_ref = ?, synced = ?, version = ? WHERE id = ?`,
		encodeDate(in.Date), string(in.Time), in.Amount.Cents, in.Category, in.Note,
		in.AccountRef, boolToInt(in.Synced), in.Version, in.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteIncome(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllIncomes(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM incomes`)
	return err
}

func (q *Queries) GetIncome(ctx context.Context, id string) (core.Income, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE id = ?`, id)
	return scanIncome(row)
}

func (q *Queries) ListIncomes(ctx context.Context) ([]core.Income, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+incomeColumns+` FROM incomes ORDER BY entry_date DESC, created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (q *Queries) MarkIncomeSynced(ctx context.Context, id string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE incomes SET synced = 1 WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanIncome(row rowScanner) (core.Income, error) {
	var (
		in                  core.Income
		date, clock, stamp  string
		synced              int64
	)
	if err := row.Scan(&in.ID, &date, &clock, &in.Amount.Cents, &in.Category, &in.Note,
		&in.AccountRef, &synced, &in.Version, &stamp); err != nil {
		return core.Income{}, err
	}
	in.Date = decodeDate(date)
	in.Time = core.ClockTime(clock)
	in.Synced = synced != 0
	in.Timestamp = decodeInstant(stamp)
	return in, nil
}

// --- transfers ---

const transferColumns = `id, entry_date, entry_time, amount_cents, from_account, to_account, note, synced, version, created_at`

func (q *Queries) InsertTransfer(ctx context.Context, tr core.Transfer) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, encodeDate(tr.Date), string(tr.Time), tr.Amount.Cents,
		tr.FromAccountID, tr.ToAccountID, tr.Note,
		boolToInt(tr.Synced), tr.Version, encodeInstant(tr.Timestamp))
	return err
}

func (q *Queries) UpdateTransfer(ctx context.Context, tr core.Transfer) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transfers SET entry_date = ?, entry_time = ?, amount_cents = ?, from_account = ?,
		 to_account = ?, note = ?, synced = ?, version = ? WHERE id = ?`,
		encodeDate(tr.Date), string(tr.Time), tr.Amount.Cents,
		tr.FromAccountID, tr.ToAccountID, tr.Note,
		boolToInt(tr.Synced), tr.Version, tr.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransfer(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllTransfers(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM transfers`)
	return err
}

func (q *Queries) GetTransfer(ctx context.Context, id string) (core.Transfer, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	return scanTransfer(row)
}

func (q *Queries) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers ORDER BY entry_date DESC, created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (q *Queries) MarkTransferSynced(ctx context.Context, id string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transfers SET synced = 1 WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanTransfer(row rowScanner) (core.Transfer, error) {
	var (
		tr                  core.Transfer
		date, clock, stamp  string
		synced              int64
	)
	if err := row.Scan(&tr.ID, &date, &clock, &tr.Amount.Cents, &tr.FromAccountID,
		&tr.ToAccountID, &tr.Note, &synced, &tr.Version, &stamp); err != nil {
		return core.Transfer{}, err
	}
	tr.Date = decodeDate(date)
	tr.Time = core.ClockTime(clock)
	tr.Synced = synced != 0
	tr.Timestamp = decodeInstant(stamp)
	return tr, nil
}

// --- accounts ---

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, display_name, is_default, synced, version) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.DisplayName, boolToInt(a.Default), boolToInt(a.Synced), a.Version)
	return err
}

func (q *Queries) UpdateAccount(ctx context.Context, a core.Account) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET display_name = ?, is_default = ?, synced = ?, version = ? WHERE id = ?`,
		a.DisplayName, boolToInt(a.Default), boolToInt(a.Synced), a.Version, a.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAccount(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllAccounts(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM accounts`)
	return err
}

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, display_name, is_default, synced, version FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, display_name, is_default, synced, version FROM accounts ORDER BY display_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) MarkAccountSynced(ctx context.Context, id string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET synced = 1 WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearDefaultAccounts unsets the default flag everywhere, ahead of
// setting it on one account.
func (q *Queries) ClearDefaultAccounts(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `UPDATE accounts SET is_default = 0 WHERE is_default = 1`)
	return err
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                 core.Account
		isDefault, synced int64
	)
	if err := row.Scan(&a.ID, &a.DisplayName, &isDefault, &synced, &a.Version); err != nil {
		return core.Account{}, err
	}
	a.Default = isDefault != 0
	a.Synced = synced != 0
	return a, nil
}

// --- settings and anchors ---

func (q *Queries) GetSettings(ctx context.Context) (core.Settings, error) {
	var (
		s        core.Settings
		sharedAt string
	)
	row := q.db.QueryRowContext(ctx,
		`SELECT currency, shared_as_of, spreadsheet_id, api_key, relay_url, relay_secret
		 FROM settings WHERE id = 1`)
	if err := row.Scan(&s.Currency, &sharedAt, &s.SpreadsheetID, &s.APIKey,
		&s.RelayURL, &s.RelaySecret); err != nil {
		return core.Settings{}, err
	}
	s.StartingBalance.SharedAsOf = decodeDate(sharedAt)

	rows, err := q.db.QueryContext(ctx, `SELECT account_id, balance_cents, as_of FROM anchors`)
	if err != nil {
		return core.Settings{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			cents int64
			asOf  string
		)
		if err := rows.Scan(&id, &cents, &asOf); err != nil {
			return core.Settings{}, err
		}
		if s.StartingBalance.Accounts == nil {
			s.StartingBalance.Accounts = make(map[string]core.AnchorRecord)
		}
		s.StartingBalance.Accounts[id] = core.AnchorRecord{
			Balance: core.Money{Cents: cents},
			AsOf:    decodeDate(asOf),
		}
	}
	return s, rows.Err()
}

func (q *Queries) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE settings SET currency = ?, shared_as_of = ?, spreadsheet_id = ?,
		 api_key = ?, relay_url = ?, relay_secret = ? WHERE id = 1`,
		s.Currency, encodeDate(s.StartingBalance.SharedAsOf),
		s.SpreadsheetID, s.APIKey, s.RelayURL, s.RelaySecret)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM anchors`); err != nil {
		return err
	}
	for id, rec := range s.StartingBalance.Accounts {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO anchors (account_id, balance_cents, as_of) VALUES (?, ?, ?)`,
			id, rec.Balance.Cents, encodeDate(rec.AsOf))
		if err != nil {
			return err
		}
	}
	return nil
}

// --- budgets ---

func (q *Queries) ListBudgets(ctx context.Context) (core.Budgets, error) {
	budgets := make(core.Budgets)

	rows, err := q.db.QueryContext(ctx, `SELECT month, target_income_cents FROM budgets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			month string
			cents int64
		)
		if err := rows.Scan(&month, &cents); err != nil {
			return nil, err
		}
		budgets[month] = core.MonthBudget{
			TargetIncome: core.Money{Cents: cents},
			Allocations:  make(map[string]core.Money),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allocRows, err := q.db.QueryContext(ctx,
		`SELECT month, category, amount_cents FROM budget_allocations`)
	if err != nil {
		return nil, err
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var (
			month, category string
			cents           int64
		)
		if err := allocRows.Scan(&month, &category, &cents); err != nil {
			return nil, err
		}
		mb, ok := budgets[month]
		if !ok {
			mb = core.MonthBudget{Allocations: make(map[string]core.Money)}
		}
		mb.Allocations[category] = core.Money{Cents: cents}
		budgets[month] = mb
	}
	return budgets, allocRows.Err()
}

func (q *Queries) ReplaceBudgets(ctx context.Context, budgets core.Budgets) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM budget_allocations`); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM budgets`); err != nil {
		return err
	}
	for month, mb := range budgets {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO budgets (month, target_income_cents) VALUES (?, ?)`,
			month, mb.TargetIncome.Cents)
		if err != nil {
			return err
		}
		for category, amount := range mb.Allocations {
			_, err := q.db.ExecContext(ctx,
				`INSERT INTO budget_allocations (month, category, amount_cents) VALUES (?, ?, ?)`,
				month, category, amount.Cents)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// --- categories ---

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM categories ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (q *Queries) ReplaceCategories(ctx context.Context, cats []string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return err
	}
	for i, name := range cats {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO categories (name, position) VALUES (?, ?)`, name, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// --- tombstones ---

// Tombstone is a locally issued delete awaiting remote confirmation.
type Tombstone struct {
	Kind      core.Kind
	EntityID  string
	CreatedAt time.Time
}

func (q *Queries) InsertTombstone(ctx context.Context, kind core.Kind, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tombstones (kind, entity_id, created_at) VALUES (?, ?, ?)`,
		string(kind), id, encodeInstant(at))
	return err
}

func (q *Queries) DeleteTombstone(ctx context.Context, kind core.Kind, id string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM tombstones WHERE kind = ? AND entity_id = ?`, string(kind), id)
	return err
}

func (q *Queries) ListTombstones(ctx context.Context) ([]Tombstone, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT kind, entity_id, created_at FROM tombstones ORDER BY created_at, entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tombstone
	for rows.Next() {
		var (
			kind, id, at string
		)
		if err := rows.Scan(&kind, &id, &at); err != nil {
			return nil, err
		}
		out = append(out, Tombstone{Kind: core.Kind(kind), EntityID: id, CreatedAt: decodeInstant(at)})
	}
	return out, rows.Err()
}
