package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"conti/internal/core"
)

const maxBodyBytes = 1 << 20 // 1MB

var (
	errBadAmount    = errors.New("amount or amount_cents required")
	errBadDirection = errors.New("unknown transfer direction")
)

// decodeJSON reads a size-capped JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// entryPayload is the wire form of an expense or income. Amount may
// arrive as a decimal string ("12,50") or directly in cents; the
// decimal form goes through the same parser the forms used.
type entryPayload struct {
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Amount      string `json:"amount,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Category    string `json:"category,omitempty"`
	Note        string `json:"note,omitempty"`
	Account     string `json:"account,omitempty"`
}

type transferPayload struct {
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Amount      string `json:"amount,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Direction   string `json:"direction,omitempty"` // legacy toBank / toCash
	Note        string `json:"note,omitempty"`
}

func (p entryPayload) amount() (core.Money, error) {
	if p.AmountCents != 0 {
		return core.Money{Cents: p.AmountCents}, nil
	}
	if strings.TrimSpace(p.Amount) == "" {
		return core.Money{}, errBadAmount
	}
	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func (p transferPayload) amount() (core.Money, error) {
	return entryPayload{Amount: p.Amount, AmountCents: p.AmountCents}.amount()
}

func (p entryPayload) toExpense() (core.Expense, error) {
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := p.amount()
	if err != nil {
		return core.Expense{}, err
	}
	account := strings.TrimSpace(p.Account)
	if account == "" {
		account = core.CashAccountID
	}
	return core.Expense{
		Date:       date,
		Time:       core.ClockTime(strings.TrimSpace(p.Time)),
		Amount:     amount,
		Category:   sanitizeInput(p.Category),
		Note:       sanitizeInput(p.Note),
		AccountRef: account,
	}, nil
}

func (p entryPayload) toIncome() (core.Income, error) {
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Income{}, err
	}
	amount, err := p.amount()
	if err != nil {
		return core.Income{}, err
	}
	account := strings.TrimSpace(p.Account)
	if account == "" {
		account = core.CashAccountID
	}
	return core.Income{
		Date:       date,
		Time:       core.ClockTime(strings.TrimSpace(p.Time)),
		Amount:     amount,
		Category:   sanitizeInput(p.Category),
		Note:       sanitizeInput(p.Note),
		AccountRef: account,
	}, nil
}

// toTransfer resolves the endpoints, translating the legacy direction
// enum against the current account list when explicit ids are absent.
func (p transferPayload) toTransfer(accounts []core.Account) (core.Transfer, error) {
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Transfer{}, err
	}
	amount, err := p.amount()
	if err != nil {
		return core.Transfer{}, err
	}
	from, to := strings.TrimSpace(p.From), strings.TrimSpace(p.To)
	if from == "" && to == "" && p.Direction != "" {
		legacyFrom, legacyTo, ok := core.TranslateLegacyDirection(p.Direction, accounts)
		if !ok {
			return core.Transfer{}, fmt.Errorf("%w: %q", errBadDirection, p.Direction)
		}
		from, to = legacyFrom, legacyTo
	}
	return core.Transfer{
		Date:          date,
		Time:          core.ClockTime(strings.TrimSpace(p.Time)),
		Amount:        amount,
		FromAccountID: from,
		ToAccountID:   to,
		Note:          sanitizeInput(p.Note),
	}, nil
}

type accountPayload struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name"`
	Default     bool   `json:"default,omitempty"`
}

type anchorPayload struct {
	BalanceCents int64  `json:"balance_cents"`
	AsOf         string `json:"as_of,omitempty"`
}

type anchorsPayload struct {
	Accounts   map[string]anchorPayload `json:"accounts"`
	SharedAsOf string                   `json:"shared_as_of,omitempty"`
}

func (p anchorsPayload) toStartingBalance() (core.StartingBalance, error) {
	sb := core.StartingBalance{Accounts: make(map[string]core.AnchorRecord, len(p.Accounts))}
	if p.SharedAsOf != "" {
		shared, err := core.ParseDate(p.SharedAsOf)
		if err != nil {
			return core.StartingBalance{}, fmt.Errorf("shared_as_of: %w", err)
		}
		sb.SharedAsOf = shared
	}
	for accountID, a := range p.Accounts {
		rec := core.AnchorRecord{Balance: core.Money{Cents: a.BalanceCents}}
		if a.AsOf != "" {
			asOf, err := core.ParseDate(a.AsOf)
			if err != nil {
				return core.StartingBalance{}, fmt.Errorf("anchor %s: %w", accountID, err)
			}
			rec.AsOf = asOf
		}
		sb.Accounts[accountID] = rec
	}
	return sb, nil
}

type budgetPayload struct {
	TargetIncomeCents int64            `json:"target_income_cents,omitempty"`
	Allocations       map[string]int64 `json:"allocations,omitempty"`
}

func (p budgetPayload) toMonthBudget() core.MonthBudget {
	mb := core.MonthBudget{
		TargetIncome: core.Money{Cents: p.TargetIncomeCents},
		Allocations:  make(map[string]core.Money, len(p.Allocations)),
	}
	for cat, cents := range p.Allocations {
		mb.Allocations[cat] = core.Money{Cents: cents}
	}
	return mb
}

type settingsPayload struct {
	Currency      string `json:"currency,omitempty"`
	SpreadsheetID string `json:"spreadsheet_id,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	RelayURL      string `json:"relay_url,omitempty"`
	RelaySecret   string `json:"relay_secret,omitempty"`
}

type categoriesPayload struct {
	Categories []string `json:"categories"`
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
