package services

import (
	"sort"

	"conti/internal/core"
)

// PacingFor derives the spending outlook for one month: days left, budget
// remaining, and the daily allowance that leaves, overall and per
// category. Months strictly in the past pace to zero.
func PacingFor(snap core.Snapshot, monthKey string, today core.Date) (core.Pacing, error) {
	year, month, err := core.ParseMonthKey(monthKey)
	if err != nil {
		return core.Pacing{}, err
	}

	days := daysRemaining(year, month, today)
	budget := snap.Budgets[monthKey]

	spentByCategory := make(map[string]int64)
	var spent int64
	for _, e := range snap.Expenses {
		if e.Date.MonthKey() != monthKey {
			continue
		}
		spent += e.Amount.Cents
		spentByCategory[e.Category] += e.Amount.Cents
	}

	allocated := budget.TotalAllocated()
	remaining := allocated - spent

	p := core.Pacing{
		Month:           monthKey,
		DaysRemaining:   days,
		TargetIncome:    budget.TargetIncome.Cents,
		Allocated:       allocated,
		Spent:           spent,
		BudgetRemaining: remaining,
		DailyAllowance:  allowance(remaining, days),
	}

	for _, cat := range pacingCategories(budget, spentByCategory) {
		alloc := budget.Allocations[cat].Cents
		catSpent := spentByCategory[cat]
		catRemaining := alloc - catSpent
		p.Categories = append(p.Categories, core.CategoryPacing{
			Category:       cat,
			Allocated:      alloc,
			Spent:          catSpent,
			Remaining:      catRemaining,
			DailyAllowance: allowance(catRemaining, days),
		})
	}
	return p, nil
}

// daysRemaining counts the days still available in the target month: all
// of them for a future month, today through month end for the current
// one, none for a past month.
func daysRemaining(year, month int, today core.Date) int {
	ty, tm := today.Year(), today.Month()
	switch {
	case year == ty && month == tm:
		return core.DaysInMonth(year, month) - today.Day() + 1
	case year > ty || (year == ty && month > tm):
		return core.DaysInMonth(year, month)
	default:
		return 0
	}
}

func allowance(remaining int64, days int) int64 {
	if days <= 0 {
		return 0
	}
	return remaining / int64(days)
}

// pacingCategories unions budgeted categories with categories actually
// spent in the month, sorted for stable output.
func pacingCategories(budget core.MonthBudget, spent map[string]int64) []string {
	seen := make(map[string]struct{}, len(budget.Allocations)+len(spent))
	var cats []string
	for c := range budget.Allocations {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cats = append(cats, c)
		}
	}
	for c := range spent {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return cats
}
