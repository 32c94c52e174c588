package core

import "testing"

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 1, 31},
		{2024, 2, 29}, // leap
		{2025, 2, 28},
		{2024, 4, 30},
		{2024, 12, 31},
	}
	for i, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Fatalf("case %d: %d-%02d expected %d days, got %d", i, tc.year, tc.month, tc.want, got)
		}
	}
}

func TestParseMonthKey(t *testing.T) {
	y, m, err := ParseMonthKey("2024-03")
	if err != nil || y != 2024 || m != 3 {
		t.Fatalf("expected 2024/3, got %d/%d (err=%v)", y, m, err)
	}
	for _, bad := range []string{"", "2024", "2024-13", "2024-00", "03-2024", "2024-3-1"} {
		if _, _, err := ParseMonthKey(bad); err == nil {
			t.Fatalf("%q expected error", bad)
		}
	}
}

func TestMonthKeyRoundTrip(t *testing.T) {
	if got := MonthKeyOf(2024, 3); got != "2024-03" {
		t.Fatalf("expected 2024-03, got %q", got)
	}
	if got := NewDate(2024, 3, 15).MonthKey(); got != "2024-03" {
		t.Fatalf("expected 2024-03, got %q", got)
	}
}

func TestTotalAllocated(t *testing.T) {
	mb := MonthBudget{Allocations: map[string]Money{
		"food": {Cents: 30000},
		"fun":  {Cents: 15000},
	}}
	if got := mb.TotalAllocated(); got != 45000 {
		t.Fatalf("expected 45000, got %d", got)
	}
	if got := (MonthBudget{}).TotalAllocated(); got != 0 {
		t.Fatalf("empty budget expected 0, got %d", got)
	}
}
