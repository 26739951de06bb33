package sched

import (
	"testing"
	"time"
)

func at(y int, mo time.Month, d, hh, mm int) time.Time {
	return time.Date(y, mo, d, hh, mm, 0, 0, time.UTC)
}

func mustNext(t *testing.T, raw string, from time.Time) time.Time {
	t.Helper()
	sp, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", raw, err)
	}
	next, err := NextTime(sp, from, 1)
	if err != nil {
		t.Fatalf("NextTime(%q, %v) error: %v", raw, from, err)
	}
	return next
}

func TestNextConcreteDates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		from time.Time
		want time.Time
	}{
		{
			name: "every minute advances by one",
			raw:  "* * * * *",
			from: at(2024, time.March, 15, 10, 30),
			want: at(2024, time.March, 15, 10, 31),
		},
		{
			name: "minute wrap crosses hour",
			raw:  "* * * * *",
			from: at(2024, time.March, 15, 10, 59),
			want: at(2024, time.March, 15, 11, 0),
		},
		{
			name: "daily time later today",
			raw:  "30 5 * * *",
			from: at(2024, time.March, 15, 5, 0),
			want: at(2024, time.March, 15, 5, 30),
		},
		{
			name: "daily time already passed",
			raw:  "30 5 * * *",
			from: at(2024, time.March, 15, 6, 0),
			want: at(2024, time.March, 16, 5, 30),
		},
		{
			name: "first of month",
			raw:  "0 4 1 * *",
			from: at(2024, time.March, 15, 10, 30),
			want: at(2024, time.April, 1, 4, 0),
		},
		{
			name: "sunday to sunday",
			raw:  "0 0 * * 0",
			from: at(2024, time.March, 10, 0, 0), // a Sunday, exactly at fire time
			want: at(2024, time.March, 17, 0, 0),
		},
		{
			name: "day of month or weekday union",
			raw:  "0 0 15 * 1",
			from: at(2024, time.March, 12, 12, 0), // Tuesday; Mondays are 4,11,18,25
			want: at(2024, time.March, 15, 0, 0),
		},
		{
			name: "union picks weekday when closer",
			raw:  "0 0 15 * 1",
			from: at(2024, time.March, 16, 12, 0),
			want: at(2024, time.March, 18, 0, 0),
		},
		{
			name: "weekday carry into next month",
			raw:  "0 0 * * 3",
			from: at(2024, time.March, 27, 12, 0), // last Wednesday of March
			want: at(2024, time.April, 3, 0, 0),
		},
		{
			name: "year rollover",
			raw:  "0 0 1 1 *",
			from: at(2024, time.March, 15, 0, 0),
			want: at(2025, time.January, 1, 0, 0),
		},
		{
			name: "short month thirty-first",
			raw:  "0 0 31 * *",
			from: at(2024, time.April, 2, 0, 0),
			want: at(2024, time.May, 31, 0, 0),
		},
		{
			name: "leap february twenty-ninth",
			raw:  "0 0 29 2 *",
			from: at(2024, time.January, 15, 0, 0),
			want: at(2024, time.February, 29, 0, 0),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := mustNext(t, tt.raw, tt.from)
			if !got.Equal(tt.want) {
				t.Fatalf("next for %q from %v = %v, want %v", tt.raw, tt.from, got, tt.want)
			}
		})
	}
}

// The computed next date must always be strictly after the reference and
// must itself satisfy the schedule.
func TestNextIsMatchingAndMonotonic(t *testing.T) {
	t.Parallel()
	specs := []string{
		"* * * * *",
		"30 4 * * 0",
		"0 0 15 * 1",
		"15 12 1 * *",
		"45 23 * * sat",
	}
	froms := []time.Time{
		at(2024, time.January, 1, 0, 0),
		at(2024, time.February, 28, 23, 59),
		at(2024, time.March, 10, 4, 30),
		at(2024, time.December, 31, 23, 59),
		at(2025, time.June, 15, 12, 0),
	}

	for _, raw := range specs {
		sp, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", raw, err)
		}
		for _, from := range froms {
			next, err := NextTime(sp, from, 1)
			if err != nil {
				t.Fatalf("NextTime(%q, %v) error: %v", raw, from, err)
			}
			if !next.After(from) {
				t.Fatalf("next for %q from %v = %v, not after reference", raw, from, next)
			}
			if !Matches(sp, next) {
				t.Fatalf("next for %q from %v = %v does not match its own schedule", raw, from, next)
			}
		}
	}
}

func TestNextZeroCarryKeepsMatchingMoment(t *testing.T) {
	t.Parallel()
	sp, err := Parse("30 4 * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	from := at(2024, time.March, 15, 4, 30)
	next, err := NextTime(sp, from, 0)
	if err != nil {
		t.Fatalf("NextTime error: %v", err)
	}
	if !next.Equal(from) {
		t.Fatalf("carry=0 from matching moment = %v, want %v", next, from)
	}
}

func TestNextKeepsLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	sp, err := Parse("0 6 * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	from := time.Date(2024, time.March, 15, 10, 0, 0, 0, loc)
	next, err := NextTime(sp, from, 1)
	if err != nil {
		t.Fatalf("NextTime error: %v", err)
	}
	if next.Location() != loc {
		t.Fatalf("location = %v, want %v", next.Location(), loc)
	}
	if next.Hour() != 6 || next.Day() != 16 {
		t.Fatalf("next = %v, want 06:00 on the 16th in %v", next, loc)
	}
}

func TestDaysIn(t *testing.T) {
	t.Parallel()
	tests := []struct {
		year, month, want int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{2024, 4, 30},
		{2024, 12, 31},
		{2100, 2, 28},
	}
	for _, tt := range tests {
		if got := daysIn(tt.year, tt.month); got != tt.want {
			t.Fatalf("daysIn(%d, %d) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestWeekdaysInMonth(t *testing.T) {
	t.Parallel()
	got := weekdaysInMonth(2024, 3, 1) // Mondays in March 2024
	want := []int{4, 11, 18, 25}
	if len(got) != len(want) {
		t.Fatalf("weekdaysInMonth = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("weekdaysInMonth = %v, want %v", got, want)
		}
	}
}

func TestUnionSorted(t *testing.T) {
	t.Parallel()
	got := unionSorted([]int{15}, []int{4, 11, 15, 18, 25})
	want := []int{4, 11, 15, 18, 25}
	if len(got) != len(want) {
		t.Fatalf("unionSorted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unionSorted = %v, want %v", got, want)
		}
	}
}
