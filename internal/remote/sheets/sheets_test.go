package sheets

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"conti/internal/core"
	"conti/internal/remote"

	"google.golang.org/api/googleapi"
)

func TestLiveRows(t *testing.T) {
	values := [][]any{
		{"ID", "Date", "Time", "Cents", "Category", "Note", "Account", "Created", "Deleted"},
		{"e1", "2024-03-01", "", "100", "misc", "", "cash", "", ""},
		{"e2", "2024-03-02", "", "200", "misc", "", "cash", "", "1"},
		{"", "2024-03-03", "", "300"},
		{"e3", "2024-03-04", "09:30", 450.0},
		{},
	}

	got := liveRows(values, 8)
	want := []remote.Row{
		{ID: "e1", Fields: []string{"2024-03-01", "", "100", "misc", "", "cash", ""}},
		{ID: "e3", Fields: []string{"2024-03-04", "09:30", "450"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLiveRowsMarkerVariants(t *testing.T) {
	cases := []struct {
		marker string
		kept   bool
	}{
		{"", true},
		{"0", true},
		{"no", true},
		{"1", false},
		{"TRUE", false},
		{"x", false},
		{"yes", false},
	}
	for i, tc := range cases {
		values := [][]any{{"a1", "Name", "1", tc.marker}}
		rows := liveRows(values, 3)
		if kept := len(rows) == 1; kept != tc.kept {
			t.Fatalf("case %d: marker %q kept=%v, want %v", i, tc.marker, kept, tc.kept)
		}
	}
}

func TestRowValuesPadsToWidth(t *testing.T) {
	r := remote.Row{ID: "a1", Fields: []string{"Name"}}
	got := rowValues(r, 3)
	want := []any{"a1", "Name", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadRangeIncludesMarkerColumn(t *testing.T) {
	cases := []struct {
		t    tab
		want string
	}{
		{entityTabs[core.KindExpense], "Expenses!A:I"},
		{entityTabs[core.KindAccount], "Accounts!A:D"},
		{categoriesTab, "Categories!A:B"},
	}
	for i, tc := range cases {
		if got := readRange(tc.t); got != tc.want {
			t.Fatalf("case %d: got %q, want %q", i, got, tc.want)
		}
	}
}

func TestWrapAPIErr(t *testing.T) {
	cases := []struct {
		err          error
		unauthorized bool
	}{
		{&googleapi.Error{Code: 401}, true},
		{&googleapi.Error{Code: 403}, true},
		{&googleapi.Error{Code: 500}, false},
		{errors.New("network down"), false},
		{fmt.Errorf("call: %w", &googleapi.Error{Code: 403}), true},
	}
	for i, tc := range cases {
		wrapped := wrapAPIErr("op", tc.err)
		if got := errors.Is(wrapped, remote.ErrUnauthorized); got != tc.unauthorized {
			t.Fatalf("case %d: unauthorized=%v, want %v for %v", i, got, tc.unauthorized, tc.err)
		}
	}
}
