package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsBusinessDay(t *testing.T) {
	tests := []struct {
		date string
		want bool
	}{
		{"2024-01-01", true},  // Monday
		{"2024-01-05", true},  // Friday
		{"2024-01-06", false}, // Saturday
		{"2024-01-07", false}, // Sunday
	}
	for _, tt := range tests {
		if got := IsBusinessDay(day(tt.date)); got != tt.want {
			t.Errorf("IsBusinessDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestBusinessDays_OneWeek(t *testing.T) {
	days, err := BusinessDays(day("2024-01-01"), day("2024-01-07"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make([]string, len(days))
	for i, d := range days {
		got[i] = Format(d)
	}
	want := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("business days mismatch (-want +got):\n%s", diff)
	}
}

func TestBusinessDays_Edges(t *testing.T) {
	days, err := BusinessDays(day("2024-01-06"), day("2024-01-07"))
	if err != nil || len(days) != 0 {
		t.Errorf("weekend-only range: got %v, %v", days, err)
	}

	days, err = BusinessDays(day("2024-01-03"), day("2024-01-03"))
	if err != nil || len(days) != 1 {
		t.Errorf("single day range: got %v, %v", days, err)
	}

	if _, err := BusinessDays(day("2024-01-05"), day("2024-01-01")); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestLastBusinessDay(t *testing.T) {
	tests := []struct {
		from string
		n    int
		want string
	}{
		{"2024-01-08", 1, "2024-01-05"}, // Monday -> Friday
		{"2024-01-07", 1, "2024-01-05"}, // Sunday -> Friday
		{"2024-01-04", 1, "2024-01-03"},
		{"2024-01-08", 3, "2024-01-03"},
		{"2024-01-08", 0, "2024-01-05"},
	}
	for _, tt := range tests {
		if got := Format(LastBusinessDay(day(tt.from), tt.n)); got != tt.want {
			t.Errorf("LastBusinessDay(%s, %d) = %s, want %s", tt.from, tt.n, got, tt.want)
		}
	}
}

func TestResolveDate(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	now := time.Date(2024, 1, 8, 14, 30, 0, 0, seoul) // Monday afternoon

	tests := []struct {
		expr    string
		want    string
		wantErr error
	}{
		{expr: "today", want: "2024-01-08"},
		{expr: "", want: "2024-01-08"},
		{expr: "yesterday", want: "2024-01-07"},
		{expr: "last-business", want: "2024-01-05"},
		{expr: "last-week", want: "2024-01-01"},
		{expr: "2024-01-02", want: "2024-01-02"},
		{expr: " YESTERDAY ", want: "2024-01-07"},
		{expr: "2024-01-09", wantErr: ErrFutureDate},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ResolveDate(tt.expr, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if Format(got) != tt.want {
				t.Errorf("ResolveDate(%q) = %s, want %s", tt.expr, Format(got), tt.want)
			}
			if got.Location() != seoul {
				t.Errorf("expected location to be preserved, got %v", got.Location())
			}
		})
	}
}

func TestResolveDate_Invalid(t *testing.T) {
	if _, err := ResolveDate("01/02/2024", time.Now()); err == nil {
		t.Error("expected parse error")
	}
}
