package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP statuses: validation
// failures are rejected as unprocessable, missing ids as not found,
// everything else is an internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidTime),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyAccountID),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrSameAccount),
		errors.Is(err, core.ErrReservedAccount),
		errors.Is(err, errBadAmount),
		errors.Is(err, errBadDirection):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type entryJSON struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Time        string    `json:"time,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category,omitempty"`
	Note        string    `json:"note,omitempty"`
	Account     string    `json:"account"`
	Synced      bool      `json:"synced"`
	Timestamp   time.Time `json:"timestamp"`
}

type transferJSON struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Time        string    `json:"time,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Note        string    `json:"note,omitempty"`
	Synced      bool      `json:"synced"`
	Timestamp   time.Time `json:"timestamp"`
}

func expenseJSON(e core.Expense) entryJSON {
	return entryJSON{
		ID:          e.ID,
		Date:        e.Date.String(),
		Time:        string(e.Time),
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Note:        e.Note,
		Account:     e.AccountRef,
		Synced:      e.Synced,
		Timestamp:   e.Timestamp,
	}
}

func incomeJSON(in core.Income) entryJSON {
	return entryJSON{
		ID:          in.ID,
		Date:        in.Date.String(),
		Time:        string(in.Time),
		AmountCents: in.Amount.Cents,
		Category:    in.Category,
		Note:        in.Note,
		Account:     in.AccountRef,
		Synced:      in.Synced,
		Timestamp:   in.Timestamp,
	}
}

func transferToJSON(tr core.Transfer) transferJSON {
	return transferJSON{
		ID:          tr.ID,
		Date:        tr.Date.String(),
		Time:        string(tr.Time),
		AmountCents: tr.Amount.Cents,
		From:        tr.FromAccountID,
		To:          tr.ToAccountID,
		Note:        tr.Note,
		Synced:      tr.Synced,
		Timestamp:   tr.Timestamp,
	}
}

type accountJSON struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Default     bool   `json:"default"`
	Synced      bool   `json:"synced"`
}

func accountToJSON(a core.Account) accountJSON {
	return accountJSON{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Default:     a.Default,
		Synced:      a.Synced,
	}
}

type balanceJSON struct {
	CashCents  int64            `json:"cash_cents"`
	PerAccount map[string]int64 `json:"per_account_cents"`
	TotalCents int64            `json:"total_cents"`
}

func balanceToJSON(rb core.RunningBalance) balanceJSON {
	return balanceJSON{
		CashCents:  rb.Cash,
		PerAccount: rb.PerAccount,
		TotalCents: rb.Total,
	}
}

type anchorsJSON struct {
	Accounts   map[string]anchorPayload `json:"accounts"`
	SharedAsOf string                   `json:"shared_as_of,omitempty"`
}

func anchorsToJSON(sb core.StartingBalance) anchorsJSON {
	out := anchorsJSON{Accounts: make(map[string]anchorPayload, len(sb.Accounts))}
	if !sb.SharedAsOf.IsZero() {
		out.SharedAsOf = sb.SharedAsOf.String()
	}
	for accountID, rec := range sb.Accounts {
		a := anchorPayload{BalanceCents: rec.Balance.Cents}
		if !rec.AsOf.IsZero() {
			a.AsOf = rec.AsOf.String()
		}
		out.Accounts[accountID] = a
	}
	return out
}

type categoryPacingJSON struct {
	Category            string `json:"category"`
	AllocatedCents      int64  `json:"allocated_cents"`
	SpentCents          int64  `json:"spent_cents"`
	RemainingCents      int64  `json:"remaining_cents"`
	DailyAllowanceCents int64  `json:"daily_allowance_cents"`
}

type pacingJSON struct {
	Month                string               `json:"month"`
	DaysRemaining        int                  `json:"days_remaining"`
	TargetIncomeCents    int64                `json:"target_income_cents"`
	AllocatedCents       int64                `json:"allocated_cents"`
	SpentCents           int64                `json:"spent_cents"`
	BudgetRemainingCents int64                `json:"budget_remaining_cents"`
	DailyAllowanceCents  int64                `json:"daily_allowance_cents"`
	Categories           []categoryPacingJSON `json:"categories,omitempty"`
}

func pacingToJSON(p core.Pacing) pacingJSON {
	out := pacingJSON{
		Month:                p.Month,
		DaysRemaining:        p.DaysRemaining,
		TargetIncomeCents:    p.TargetIncome,
		AllocatedCents:       p.Allocated,
		SpentCents:           p.Spent,
		BudgetRemainingCents: p.BudgetRemaining,
		DailyAllowanceCents:  p.DailyAllowance,
	}
	for _, c := range p.Categories {
		out.Categories = append(out.Categories, categoryPacingJSON{
			Category:            c.Category,
			AllocatedCents:      c.Allocated,
			SpentCents:          c.Spent,
			RemainingCents:      c.Remaining,
			DailyAllowanceCents: c.DailyAllowance,
		})
	}
	return out
}

type warningJSON struct {
	TransactionID         string `json:"transaction_id"`
	AccountID             string `json:"account_id"`
	ProjectedBalanceCents int64  `json:"projected_balance_cents"`
	ShortfallCents        int64  `json:"shortfall_cents"`
	Date                  string `json:"date"`
}

func warningToJSON(wn core.Warning) warningJSON {
	return warningJSON{
		TransactionID:         wn.TransactionID,
		AccountID:             wn.AccountID,
		ProjectedBalanceCents: wn.ProjectedBalance,
		ShortfallCents:        wn.Shortfall,
		Date:                  wn.Date.String(),
	}
}

func budgetToJSON(mb core.MonthBudget) budgetPayload {
	out := budgetPayload{
		TargetIncomeCents: mb.TargetIncome.Cents,
		Allocations:       make(map[string]int64, len(mb.Allocations)),
	}
	for cat, m := range mb.Allocations {
		out.Allocations[cat] = m.Cents
	}
	return out
}

// settingsJSON is the outward shape of the settings record. Secrets are
// write-only through the API: responses only admit whether they are set.
type settingsJSON struct {
	Currency          string `json:"currency,omitempty"`
	SpreadsheetLinked bool   `json:"spreadsheet_linked"`
	RelayConfigured   bool   `json:"relay_configured"`
	ReadKeyConfigured bool   `json:"read_key_configured"`
}

func settingsToJSON(s core.Settings) settingsJSON {
	return settingsJSON{
		Currency:          s.Currency,
		SpreadsheetLinked: s.SpreadsheetID != "",
		RelayConfigured:   s.RelayURL != "" && s.RelaySecret != "",
		ReadKeyConfigured: s.APIKey != "",
	}
}
