package core

import "strings"

type (
	// Settings is the single config record. Secret-bearing fields
	// (SpreadsheetID, APIKey, RelayURL, RelaySecret) never leave the
	// local replica: merge keeps them local no matter what remote says,
	// and the remote save path never writes them.
	Settings struct {
		Currency        string
		StartingBalance StartingBalance
		SpreadsheetID   string
		APIKey          string
		RelayURL        string
		RelaySecret     string
	}

	// Snapshot bundles every synced collection: the shape a remote pull
	// returns and the shape merge operates on.
	Snapshot struct {
		Expenses   []Expense
		Incomes    []Income
		Transfers  []Transfer
		Accounts   []Account
		Settings   Settings
		Budgets    Budgets
		Categories []string
	}
)

// WithoutSecrets returns a copy safe to serialize outward: secret fields
// blanked, everything else intact.
func (s Settings) WithoutSecrets() Settings {
	s.SpreadsheetID = ""
	s.APIKey = ""
	s.RelayURL = ""
	s.RelaySecret = ""
	return s
}

// CopySecretsFrom overwrites the secret fields with local's values. Merge
// calls this last so remote content can never leak into credentials.
func (s Settings) CopySecretsFrom(local Settings) Settings {
	s.SpreadsheetID = local.SpreadsheetID
	s.APIKey = local.APIKey
	s.RelayURL = local.RelayURL
	s.RelaySecret = local.RelaySecret
	return s
}

// IsZero reports whether the settings record carries no data at all.
func (s Settings) IsZero() bool {
	return s.Currency == "" &&
		len(s.StartingBalance.Accounts) == 0 &&
		s.StartingBalance.SharedAsOf.IsZero() &&
		s.SpreadsheetID == "" && s.APIKey == "" &&
		s.RelayURL == "" && s.RelaySecret == ""
}

// NormalizeCategories trims, drops empties and dedupes while preserving
// first-seen order.
func NormalizeCategories(cats []string) []string {
	seen := make(map[string]struct{}, len(cats))
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
