package core

import (
	"strconv"
	"strings"
	"time"
)

type (
	// MonthBudget is one month's plan: an income target plus per-category
	// spending allocations.
	MonthBudget struct {
		TargetIncome Money
		Allocations  map[string]Money
	}

	// Budgets maps "YYYY-MM" month keys to their plans. Mutated only by
	// explicit user saves.
	Budgets map[string]MonthBudget
)

// TotalAllocated sums every category allocation in cents.
func (mb MonthBudget) TotalAllocated() int64 {
	var total int64
	for _, m := range mb.Allocations {
		total += m.Cents
	}
	return total
}

// ParseMonthKey splits a "YYYY-MM" key into year and month.
func ParseMonthKey(key string) (year, month int, err error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidDate
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil || year < 1 {
		return 0, 0, ErrInvalidDate
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, ErrInvalidDate
	}
	return year, month, nil
}

// MonthKeyOf builds the "YYYY-MM" key for a year and month.
func MonthKeyOf(year, month int) string {
	return NewDate(year, month, 1).MonthKey()
}

// DaysInMonth returns the day count of a calendar month, leap years
// included.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
