package services

import (
	"sort"

	"conti/internal/core"
)

// syncable is the shape merge needs from every collection element: a
// stable identity plus the synced flag.
type syncable[T any] interface {
	EntityID() string
	IsSynced() bool
	WithSynced(bool) T
}

// PendingDeletes holds ids deleted locally whose tombstone has not been
// confirmed remotely yet, per collection kind. Merge must not let the
// remote snapshot resurrect them.
type PendingDeletes map[core.Kind]map[string]struct{}

// MergeSnapshots folds a remote snapshot into local state, collection by
// collection. The rules, applied identity-keyed per id:
//
//  1. remote rows seed the result, marked synced
//  2. local unsynced rows insert or overwrite unconditionally
//  3. local synced rows absent from remote are dropped (deleted elsewhere)
//
// Settings, budgets and categories take the remote value when present,
// otherwise keep local; secret settings fields always stay local.
// Running it twice against the same remote snapshot yields the same
// result.
func MergeSnapshots(local, remote core.Snapshot, deletes PendingDeletes) core.Snapshot {
	return core.Snapshot{
		Expenses:   mergeCollection(local.Expenses, remote.Expenses, deletes[core.KindExpense]),
		Incomes:    mergeCollection(local.Incomes, remote.Incomes, deletes[core.KindIncome]),
		Transfers:  mergeCollection(local.Transfers, remote.Transfers, deletes[core.KindTransfer]),
		Accounts:   normalizeDefaults(mergeCollection(local.Accounts, remote.Accounts, deletes[core.KindAccount])),
		Settings:   mergeSettings(local.Settings, remote.Settings),
		Budgets:    mergeBudgets(local.Budgets, remote.Budgets),
		Categories: mergeCategories(local.Categories, remote.Categories),
	}
}

func mergeCollection[T syncable[T]](local, remote []T, pendingDeletes map[string]struct{}) []T {
	result := make(map[string]T, len(remote)+len(local))
	for _, r := range remote {
		id := r.EntityID()
		if _, dead := pendingDeletes[id]; dead {
			continue
		}
		result[id] = r.WithSynced(true)
	}
	for _, l := range local {
		if !l.IsSynced() {
			result[l.EntityID()] = l
		}
	}

	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, result[id])
	}
	return out
}

// normalizeDefaults restores the single-default invariant after an
// account merge: two stores can each have promoted a different default,
// and a deletion pulled from the remote can leave none. An unsynced
// default wins over a synced one (it is the more recent local choice);
// ties fall to the first id in sorted order. A row whose flag flips is
// marked unsynced so the correction reaches the remote.
func normalizeDefaults(accounts []core.Account) []core.Account {
	if len(accounts) == 0 {
		return accounts
	}
	keep := -1
	for i, a := range accounts {
		if a.Default && !a.Synced {
			keep = i
			break
		}
	}
	if keep < 0 {
		for i, a := range accounts {
			if a.Default {
				keep = i
				break
			}
		}
	}
	if keep < 0 {
		keep = 0
	}
	for i := range accounts {
		want := i == keep
		if accounts[i].Default != want {
			accounts[i].Default = want
			accounts[i].Synced = false
			accounts[i].Version++
		}
	}
	return accounts
}

// mergeSettings takes remote fields when present and local otherwise;
// the secret fields are copied back from local unconditionally so remote
// content can never reach stored credentials.
func mergeSettings(local, remote core.Settings) core.Settings {
	merged := remote.CopySecretsFrom(local)
	if merged.Currency == "" {
		merged.Currency = local.Currency
	}
	if len(merged.StartingBalance.Accounts) == 0 && merged.StartingBalance.SharedAsOf.IsZero() {
		merged.StartingBalance = local.StartingBalance
	}
	return merged
}

func mergeBudgets(local, remote core.Budgets) core.Budgets {
	if len(remote) > 0 {
		return remote
	}
	return local
}

func mergeCategories(local, remote []string) []string {
	if len(remote) > 0 {
		return core.NormalizeCategories(remote)
	}
	return local
}

// Unsynced filters a collection down to the rows still needing a push.
func Unsynced[T syncable[T]](list []T) []T {
	var out []T
	for _, item := range list {
		if !item.IsSynced() {
			out = append(out, item)
		}
	}
	return out
}
