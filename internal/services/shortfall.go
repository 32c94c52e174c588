package services

import (
	"sort"

	"conti/internal/core"
)

// Shortfalls projects scheduled future transactions over the as-of-today
// balance and returns a warning for every expense or transfer source leg
// that would push its account below zero. Income never warns. The result
// is ordered by replay position; it is a point-in-time projection and
// must be recomputed whenever inputs change.
func Shortfalls(snap core.Snapshot, today core.Date) []core.Warning {
	base := BalanceAsOf(snap, today)
	totals := map[string]int64{core.CashAccountID: base.Cash}
	for id, cents := range base.PerAccount {
		totals[id] = cents
	}

	items := collectFuture(snap, today)
	sortReplay(items)

	var warnings []core.Warning
	for _, it := range items {
		switch {
		case it.debit != "" && it.credit != "":
			// transfer: the source leg can overdraw, the destination
			// leg never does
			totals[it.debit] -= it.amount
			if totals[it.debit] < 0 {
				warnings = append(warnings, warning(it, it.debit, totals[it.debit]))
			}
			totals[it.credit] += it.amount
		case it.debit != "":
			totals[it.debit] -= it.amount
			if totals[it.debit] < 0 {
				warnings = append(warnings, warning(it, it.debit, totals[it.debit]))
			}
		default:
			totals[it.credit] += it.amount
		}
	}
	return warnings
}

// WarningIndex keys warnings by transaction id for per-entry lookup.
func WarningIndex(warnings []core.Warning) map[string]core.Warning {
	idx := make(map[string]core.Warning, len(warnings))
	for _, w := range warnings {
		idx[w.TransactionID] = w
	}
	return idx
}

type replayItem struct {
	id     string
	date   core.Date
	time   core.ClockTime
	amount int64
	debit  string // account the amount leaves
	credit string // account the amount enters
}

func collectFuture(snap core.Snapshot, today core.Date) []replayItem {
	var items []replayItem
	for _, e := range snap.Expenses {
		if !e.Date.After(today) {
			continue
		}
		items = append(items, replayItem{
			id:     e.ID,
			date:   e.Date,
			time:   e.Time,
			amount: e.Amount.Cents,
			debit:  core.ResolveAccountRef(e.AccountRef, snap.Accounts),
		})
	}
	for _, in := range snap.Incomes {
		if !in.Date.After(today) {
			continue
		}
		items = append(items, replayItem{
			id:     in.ID,
			date:   in.Date,
			time:   in.Time,
			amount: in.Amount.Cents,
			credit: core.ResolveAccountRef(in.AccountRef, snap.Accounts),
		})
	}
	for _, tr := range snap.Transfers {
		if !tr.Date.After(today) {
			continue
		}
		items = append(items, replayItem{
			id:     tr.ID,
			date:   tr.Date,
			time:   tr.Time,
			amount: tr.Amount.Cents,
			debit:  core.ResolveAccountRef(tr.FromAccountID, snap.Accounts),
			credit: core.ResolveAccountRef(tr.ToAccountID, snap.Accounts),
		})
	}
	return items
}

// sortReplay orders ascending by date; within a date, timed entries come
// before untimed ones, timed entries by clock time.
func sortReplay(items []replayItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.date.Equal(b.date.Time) {
			return a.date.Before(b.date)
		}
		if a.time.IsSet() != b.time.IsSet() {
			return a.time.IsSet()
		}
		return a.time < b.time
	})
}

func warning(it replayItem, accountID string, projected int64) core.Warning {
	return core.Warning{
		TransactionID:    it.id,
		AccountID:        accountID,
		ProjectedBalance: projected,
		Shortfall:        -projected,
		Date:             it.date,
	}
}
