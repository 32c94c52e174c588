package memory

import (
	"context"
	"sync"

	"conti/internal/core"
	"conti/internal/remote"
)

// Store is an in-memory remote used by tests and local development. It
// behaves like the spreadsheet backend: appended rows accumulate per
// section, MarkDeleted hides rows without removing them, and the save
// calls replace their section wholesale.
type Store struct {
	mu         sync.Mutex
	rows       map[core.Kind][]remote.Row
	deleted    map[core.Kind]map[string]struct{}
	config     []remote.Row
	budgets    []remote.Row
	categories []remote.Row
	err        error
	stats      Stats
}

// Ensure interface conformance
var _ remote.Adapter = (*Store)(nil)

// Stats counts remote calls, letting tests assert what a sync cycle
// actually did.
type Stats struct {
	Fetches int
	Appends int
	Deletes int
	Saves   int
}

func New() *Store {
	return &Store{
		rows:    make(map[core.Kind][]remote.Row),
		deleted: make(map[core.Kind]map[string]struct{}),
	}
}

// Seed replaces the whole remote state with the given snapshot.
func (s *Store) Seed(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = map[core.Kind][]remote.Row{
		core.KindExpense:  remote.EncodeRows(core.KindExpense, snap),
		core.KindIncome:   remote.EncodeRows(core.KindIncome, snap),
		core.KindTransfer: remote.EncodeRows(core.KindTransfer, snap),
		core.KindAccount:  remote.EncodeRows(core.KindAccount, snap),
	}
	s.deleted = make(map[core.Kind]map[string]struct{})
	s.config = remote.EncodeConfig(snap.Settings)
	s.budgets = remote.EncodeBudgets(snap.Budgets)
	s.categories = remote.EncodeCategories(snap.Categories)
}

// SetError makes every following call fail with err until cleared.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Rows returns the live rows of a kind, tombstoned ones excluded.
func (s *Store) Rows(kind core.Kind) []remote.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveRows(kind)
}

// DeletedIDs returns the ids marked deleted for a kind.
func (s *Store) DeletedIDs(kind core.Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.deleted[kind] {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) FetchSnapshot(_ context.Context, _ remote.Credentials) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Fetches++
	if s.err != nil {
		return core.Snapshot{}, s.err
	}
	cols := remote.Collections{
		Expenses:   s.liveRows(core.KindExpense),
		Incomes:    s.liveRows(core.KindIncome),
		Transfers:  s.liveRows(core.KindTransfer),
		Accounts:   s.liveRows(core.KindAccount),
		Config:     append([]remote.Row(nil), s.config...),
		Budgets:    append([]remote.Row(nil), s.budgets...),
		Categories: append([]remote.Row(nil), s.categories...),
	}
	return remote.DecodeCollections(cols), nil
}

func (s *Store) AppendEntities(_ context.Context, _ remote.Credentials, kind core.Kind, rows []remote.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Appends++
	if s.err != nil {
		return s.err
	}
	s.rows[kind] = append(s.rows[kind], rows...)
	return nil
}

func (s *Store) MarkDeleted(_ context.Context, _ remote.Credentials, kind core.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Deletes++
	if s.err != nil {
		return s.err
	}
	if s.deleted[kind] == nil {
		s.deleted[kind] = make(map[string]struct{})
	}
	s.deleted[kind][id] = struct{}{}
	return nil
}

func (s *Store) SaveConfig(_ context.Context, _ remote.Credentials, cfg core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Saves++
	if s.err != nil {
		return s.err
	}
	s.config = remote.EncodeConfig(cfg)
	return nil
}

func (s *Store) SaveBudgets(_ context.Context, _ remote.Credentials, b core.Budgets) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Saves++
	if s.err != nil {
		return s.err
	}
	s.budgets = remote.EncodeBudgets(b)
	return nil
}

func (s *Store) SaveCategories(_ context.Context, _ remote.Credentials, cats []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Saves++
	if s.err != nil {
		return s.err
	}
	s.categories = remote.EncodeCategories(cats)
	return nil
}

func (s *Store) liveRows(kind core.Kind) []remote.Row {
	var out []remote.Row
	for _, r := range s.rows[kind] {
		if _, gone := s.deleted[kind][r.ID]; gone {
			continue
		}
		out = append(out, r)
	}
	return out
}
