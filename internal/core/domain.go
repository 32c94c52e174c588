package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// CashAccountID identifies the implicit cash account. It is a fixed
	// singleton: never stored in the account collection, never deletable.
	CashAccountID = "cash"

	// BankBucketID is the synthetic bucket transactions land in when they
	// reference a bank account and no bank accounts are configured. Legacy
	// single-bank data used this id directly.
	BankBucketID = "bank"
)

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindTransfer Kind = "transfer"
	KindAccount  Kind = "account"
)

type (
	// Kind names a synced collection.
	Kind string

	// Date is a calendar date at UTC midnight. The zero value means "the
	// epoch": every real date sorts after it.
	Date struct {
		time.Time
	}

	// ClockTime is an optional "HH:MM" wall-clock time. Empty means the
	// entry has no time component.
	ClockTime string

	Money struct {
		Cents int64
	}

	// Account is a user-configured bank account. The cash account is not
	// represented here; it exists implicitly (CashAccountID).
	Account struct {
		ID          string
		DisplayName string
		Default     bool
		Synced      bool
		Version     int64
	}

	// Expense is money leaving an account.
	Expense struct {
		ID         string
		Date       Date
		Time       ClockTime
		Amount     Money
		Category   string
		Note       string
		AccountRef string // account that paid; resolved against the account list
		Synced     bool
		Version    int64
		Timestamp  time.Time // creation instant, display ordering only
	}

	// Income is money entering an account.
	Income struct {
		ID         string
		Date       Date
		Time       ClockTime
		Amount     Money
		Category   string
		Note       string
		AccountRef string
		Synced     bool
		Version    int64
		Timestamp  time.Time
	}

	// Transfer moves money between two accounts. Either endpoint may be
	// the cash singleton.
	Transfer struct {
		ID            string
		Date          Date
		Time          ClockTime
		Amount        Money
		FromAccountID string
		ToAccountID   string
		Note          string
		Synced        bool
		Version       int64
		Timestamp     time.Time
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyAccountID  = errors.New("empty account id")
	ErrEmptyName       = errors.New("empty account name")
	ErrSameAccount     = errors.New("transfer endpoints must differ")
	ErrReservedAccount = errors.New("reserved account id")
)

var clockTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// OnOrAfter reports whether d falls on or after other. A zero anchor
// date admits every real date.
func (d Date) OnOrAfter(other Date) bool {
	return !d.Time.Before(other.Time)
}

// MonthKey returns the "YYYY-MM" budget key for this date.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (ct ClockTime) Validate() error {
	if ct == "" {
		return nil
	}
	if !clockTimeRe.MatchString(string(ct)) {
		return ErrInvalidTime
	}
	return nil
}

// IsSet reports whether the entry carries a wall-clock time.
func (ct ClockTime) IsSet() bool {
	return ct != ""
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyAccountID
	}
	if a.ID == CashAccountID {
		return ErrReservedAccount
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		return ErrEmptyName
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Time.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (in Income) Validate() error {
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if err := in.Time.Validate(); err != nil {
		return err
	}
	return in.Amount.Validate()
}

func (tr Transfer) Validate() error {
	if err := tr.Date.Validate(); err != nil {
		return err
	}
	if err := tr.Time.Validate(); err != nil {
		return err
	}
	if err := tr.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(tr.FromAccountID) == "" || strings.TrimSpace(tr.ToAccountID) == "" {
		return ErrEmptyAccountID
	}
	if tr.FromAccountID == tr.ToAccountID {
		return ErrSameAccount
	}
	return nil
}

// EntityID returns the merge identity of the record.
func (a Account) EntityID() string   { return a.ID }
func (e Expense) EntityID() string   { return e.ID }
func (in Income) EntityID() string   { return in.ID }
func (tr Transfer) EntityID() string { return tr.ID }

// IsSynced reports whether the record has reached the remote backend.
func (a Account) IsSynced() bool   { return a.Synced }
func (e Expense) IsSynced() bool   { return e.Synced }
func (in Income) IsSynced() bool   { return in.Synced }
func (tr Transfer) IsSynced() bool { return tr.Synced }

// WithSynced returns a copy with the synced flag replaced.
func (a Account) WithSynced(v bool) Account     { a.Synced = v; return a }
func (e Expense) WithSynced(v bool) Expense     { e.Synced = v; return e }
func (in Income) WithSynced(v bool) Income      { in.Synced = v; return in }
func (tr Transfer) WithSynced(v bool) Transfer  { tr.Synced = v; return tr }
