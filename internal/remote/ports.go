// Package remote defines the adapter contract every sync transport
// implements, plus the shared wire row codec. The reconciler only ever
// talks to an Adapter; whether rows live in a spreadsheet reached
// directly or behind a relay script is invisible to it.
package remote

import (
	"context"
	"errors"

	"conti/internal/core"
)

// ErrUnauthorized marks credential failures (expired token, bad relay
// secret). Callers surface it for re-authentication instead of retrying
// silently.
var ErrUnauthorized = errors.New("remote authorization rejected")

// Credentials carries everything a transport needs per call. Values come
// from local settings and are threaded explicitly; adapters hold no
// ambient session state.
type Credentials struct {
	SpreadsheetID string
	APIKey        string
	RelayURL      string
	RelaySecret   string
}

// CredentialsFrom extracts the transport credentials out of settings.
func CredentialsFrom(s core.Settings) Credentials {
	return Credentials{
		SpreadsheetID: s.SpreadsheetID,
		APIKey:        s.APIKey,
		RelayURL:      s.RelayURL,
		RelaySecret:   s.RelaySecret,
	}
}

// Adapter is the remote side of a reconciliation cycle.
//
// FetchSnapshot returns the full remote state with tombstoned rows
// already filtered out. AppendEntities is append-only; re-sending a row
// id must stay harmless because readers dedupe by id. MarkDeleted flags
// a row's tombstone marker and succeeds when the id is already gone.
// The three save calls clear-and-rewrite their own section and never
// write secret fields.
type Adapter interface {
	FetchSnapshot(ctx context.Context, creds Credentials) (core.Snapshot, error)
	AppendEntities(ctx context.Context, creds Credentials, kind core.Kind, rows []Row) error
	MarkDeleted(ctx context.Context, creds Credentials, kind core.Kind, id string) error
	SaveConfig(ctx context.Context, creds Credentials, s core.Settings) error
	SaveBudgets(ctx context.Context, creds Credentials, b core.Budgets) error
	SaveCategories(ctx context.Context, creds Credentials, cats []string) error
}
