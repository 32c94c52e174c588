package core

type (
	// AnchorRecord is the starting point of one account's running balance.
	// Transactions dated before AsOf do not count toward that account.
	// Balance may be zero or negative; it is never validated like a
	// transaction amount.
	AnchorRecord struct {
		Balance Money
		AsOf    Date
	}

	// StartingBalance holds the balance anchors for every account. Two
	// historical shapes coexist: the current per-account dated form
	// (each record carries its own AsOf) and a legacy form where all
	// records shared one SharedAsOf date. ResolveAnchor is the only
	// place that distinction is allowed to matter.
	StartingBalance struct {
		Accounts   map[string]AnchorRecord
		SharedAsOf Date
	}
)

// ResolveAnchor returns the effective anchor for an account id, walking
// the fallback chain: per-account dated anchor, then the legacy shared
// date applied to an undated per-account amount, then zero at the epoch.
func (sb StartingBalance) ResolveAnchor(accountID string) AnchorRecord {
	rec, ok := sb.Accounts[accountID]
	if !ok {
		return AnchorRecord{}
	}
	if rec.AsOf.IsZero() && !sb.SharedAsOf.IsZero() {
		rec.AsOf = sb.SharedAsOf
	}
	return rec
}

// DefaultBankID returns the id balances fall back to for bank-side
// references: the default account when one is configured, the first
// account otherwise, and the synthetic bucket when none exist.
func DefaultBankID(accounts []Account) string {
	for _, a := range accounts {
		if a.Default {
			return a.ID
		}
	}
	if len(accounts) > 0 {
		return accounts[0].ID
	}
	return BankBucketID
}

// ResolveAccountRef maps a stored account reference to a guaranteed-valid
// account id. Cash stays cash; a known bank id stays itself; anything
// else (empty, legacy "bank", an account deleted since the entry was
// written) resolves to the default bank bucket. Entries are never
// dropped for carrying a stale reference.
func ResolveAccountRef(ref string, accounts []Account) string {
	if ref == CashAccountID {
		return CashAccountID
	}
	for _, a := range accounts {
		if a.ID == ref {
			return a.ID
		}
	}
	return DefaultBankID(accounts)
}

// Legacy transfer directions predating explicit endpoint ids.
const (
	legacyToBank = "toBank"
	legacyToCash = "toCash"
)

// TranslateLegacyDirection converts an old two-value transfer direction
// into explicit endpoint ids against the current account list. The
// second return is false when the value is not a legacy direction.
func TranslateLegacyDirection(direction string, accounts []Account) (from, to string, ok bool) {
	switch direction {
	case legacyToBank:
		return CashAccountID, DefaultBankID(accounts), true
	case legacyToCash:
		return DefaultBankID(accounts), CashAccountID, true
	default:
		return "", "", false
	}
}
