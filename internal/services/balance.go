// Package services provides business logic and orchestration services.
//
// The calculators in this package are pure: they fold ledger collections
// into derived views (balances, pacing, shortfall warnings) without
// touching storage or the network.
package services

import (
	"conti/internal/core"
)

// Balance folds the full transaction history into a per-account running
// balance, each account gated by its own anchor date.
func Balance(snap core.Snapshot) core.RunningBalance {
	return balanceThrough(snap, core.Date{}, false)
}

// BalanceAsOf is Balance restricted to transactions dated on or before
// the cutoff.
func BalanceAsOf(snap core.Snapshot, cutoff core.Date) core.RunningBalance {
	return balanceThrough(snap, cutoff, true)
}

func balanceThrough(snap core.Snapshot, cutoff core.Date, limited bool) core.RunningBalance {
	sb := snap.Settings.StartingBalance
	ids := trackedAccountIDs(snap.Accounts)

	anchors := make(map[string]core.AnchorRecord, len(ids))
	totals := make(map[string]int64, len(ids))
	for _, id := range ids {
		a := sb.ResolveAnchor(id)
		anchors[id] = a
		totals[id] = a.Balance.Cents
	}

	include := func(d core.Date) bool {
		return !limited || !d.After(cutoff)
	}

	for _, e := range snap.Expenses {
		if !include(e.Date) {
			continue
		}
		id := core.ResolveAccountRef(e.AccountRef, snap.Accounts)
		if e.Date.OnOrAfter(anchors[id].AsOf) {
			totals[id] -= e.Amount.Cents
		}
	}
	for _, in := range snap.Incomes {
		if !include(in.Date) {
			continue
		}
		id := core.ResolveAccountRef(in.AccountRef, snap.Accounts)
		if in.Date.OnOrAfter(anchors[id].AsOf) {
			totals[id] += in.Amount.Cents
		}
	}
	// Each transfer leg is gated by its own endpoint's anchor. A transfer
	// dated between the two anchor dates hits one side only; that keeps
	// every account self-consistent from its own anchor forward.
	for _, tr := range snap.Transfers {
		if !include(tr.Date) {
			continue
		}
		fromID := core.ResolveAccountRef(tr.FromAccountID, snap.Accounts)
		toID := core.ResolveAccountRef(tr.ToAccountID, snap.Accounts)
		if tr.Date.OnOrAfter(anchors[fromID].AsOf) {
			totals[fromID] -= tr.Amount.Cents
		}
		if tr.Date.OnOrAfter(anchors[toID].AsOf) {
			totals[toID] += tr.Amount.Cents
		}
	}

	rb := core.RunningBalance{
		Cash:       totals[core.CashAccountID],
		PerAccount: make(map[string]int64, len(ids)-1),
	}
	for id, cents := range totals {
		rb.Total += cents
		if id != core.CashAccountID {
			rb.PerAccount[id] = cents
		}
	}
	return rb
}

// trackedAccountIDs returns cash plus every configured bank account, or
// cash plus the synthetic bucket when no banks exist.
func trackedAccountIDs(accounts []core.Account) []string {
	ids := make([]string, 0, len(accounts)+1)
	ids = append(ids, core.CashAccountID)
	if len(accounts) == 0 {
		return append(ids, core.BankBucketID)
	}
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids
}
