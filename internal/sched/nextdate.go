package sched

import (
	"sync"
	"time"
)

// Moment is a minute-resolution calendar position, the output of Next.
type Moment struct {
	Minute int
	Hour   int
	Day    int
	Month  int
	Year   int
}

// Time converts the moment to a time.Time in the given location.
func (m Moment) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(m.Year, time.Month(m.Month), m.Day, m.Hour, m.Minute, 0, 0, loc)
}

// intermediate holds the mutable constraint state used while computing a
// next date. The day-of-month set is rebuilt per candidate month when a
// day-of-week constraint is present, so the original explicit set is kept
// separately.
type intermediate struct {
	minute    *int
	hour      *int
	month     *int
	dayOfWeek *int

	dayOfMonth     []int
	origDayOfMonth []int
}

// Next computes the next calendar date matching sp, starting from "from".
//
// carry is the number of minutes added to the reference before searching;
// callers computing "next run strictly after now" pass carry=1 so a moment
// that already matches the schedule is not returned again.
//
// The computation is a ripple-carry increment across minute, hour, day,
// month and year, where each constrained field snaps to the smallest
// allowed value >= its carry-adjusted current value, wrapping (and carrying
// into the next field) when none exists. Day-of-month is special: a
// day-of-week constraint is folded into it as the set of matching calendar
// days of the candidate month, OR-ed with any explicit day-of-month value,
// and the set is recomputed once if the day step carries into a new month.
// A second carry out of that recomputation is ErrDayRecalc.
func Next(sp Spec, from time.Time, carry int) (Moment, error) {
	im := &intermediate{
		minute:    sp.Minute,
		hour:      sp.Hour,
		month:     sp.Month,
		dayOfWeek: sp.DayOfWeek,
	}
	if sp.DayOfMonth != nil {
		im.dayOfMonth = []int{*sp.DayOfMonth}
	}
	im.origDayOfMonth = append([]int(nil), im.dayOfMonth...)

	m := Moment{
		Minute: from.Minute(),
		Hour:   from.Hour(),
		Day:    from.Day(),
		Month:  int(from.Month()),
		Year:   from.Year(),
	}

	var set []int
	if im.minute != nil {
		set = []int{*im.minute}
	}
	m.Minute, carry = nextElem(m.Minute, carry, 0, 59, set)

	set = nil
	if im.hour != nil {
		set = []int{*im.hour}
	}
	m.Hour, carry = nextElem(m.Hour, carry, 0, 23, set)

	// Day of month is tricky. A carry out of the day step means we flipped
	// to the next month (and potentially the next year).
	newDay, carry := nextDay(im, carry, m.Day, m.Month, m.Year)

	// Only do another round if a day-of-week constraint is present: the
	// weekday-derived day set was computed for the old month and is stale.
	if carry > 0 && im.dayOfWeek != nil {
		monthLA, yearLA := m.Month, m.Year
		if monthLA == 12 {
			monthLA = 1
			yearLA++
		} else {
			monthLA++
		}

		var extra int
		newDay, extra = nextDay(im, 0, 1, monthLA, yearLA)
		// A day rolling over twice (a constrained day beyond the new
		// month's length) is not handled; fail loudly instead of guessing.
		if extra > 0 {
			return Moment{}, ErrDayRecalc
		}
	}
	m.Day = newDay

	set = nil
	if im.month != nil {
		set = []int{*im.month}
	}
	m.Month, carry = nextElem(m.Month, carry, 1, 12, set)

	// Year has no constraint concept; just absorb the carry.
	m.Year += carry

	return m, nil
}

// NextTime is Next converted to a time.Time in from's location.
func NextTime(sp Spec, from time.Time, carry int) (time.Time, error) {
	m, err := Next(sp, from, carry)
	if err != nil {
		return time.Time{}, err
	}
	return m.Time(from.Location()), nil
}

// nextDay advances the day-of-month field within the given month, folding
// any day-of-week constraint into the effective day set first (cron ORs the
// two constraints together).
func nextDay(im *intermediate, carry, day, month, year int) (int, int) {
	if im.dayOfWeek != nil {
		weekdays := weekdaysInMonth(year, month, *im.dayOfWeek)
		im.dayOfMonth = unionSorted(im.origDayOfMonth, weekdays)
	}
	return nextElem(day, carry, 1, daysIn(year, month), im.dayOfMonth)
}

// nextElem advances one positional field. An empty set means the field is
// unconstrained: the carry-adjusted value is kept, wrapping to lower with a
// carry of 1 if it exceeds upper. Otherwise the smallest allowed value >=
// the carry-adjusted value is selected; if there is none (or it exceeds
// upper, which happens for day sets bounded by short months), the field
// wraps to the smallest allowed value and carries.
func nextElem(elem, carry, lower, upper int, set []int) (int, int) {
	newElem := elem + carry
	newCarry := 0

	if len(set) == 0 {
		if newElem > upper {
			newElem = lower
			newCarry = 1
		}
		return newElem, newCarry
	}

	found := false
	for _, v := range set {
		if v >= newElem {
			newElem = v
			found = true
			break
		}
	}
	if !found || newElem > upper {
		newElem = set[0]
		newCarry = 1
	}
	return newElem, newCarry
}

func daysIn(year, month int) int {
	// Day 0 of the following month normalizes to this month's last day.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

type monthWeekdayKey struct {
	year, month, wd int
}

var weekdayCache sync.Map // monthWeekdayKey -> []int

// weekdaysInMonth returns every day number of the given month that falls on
// the given cron weekday. Memoized; the scheduler asks for the same months
// over and over.
func weekdaysInMonth(year, month, wd int) []int {
	key := monthWeekdayKey{year, month, wd}
	if v, ok := weekdayCache.Load(key); ok {
		return v.([]int)
	}

	target := cronToWeekday(wd)
	var days []int
	for d := 1; d <= daysIn(year, month); d++ {
		if time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC).Weekday() == target {
			days = append(days, d)
		}
	}
	weekdayCache.Store(key, days)
	return days
}

// unionSorted merges two ascending day lists, dropping duplicates.
func unionSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, k := 0, 0
	for i < len(a) || k < len(b) {
		switch {
		case i >= len(a):
			out = append(out, b[k])
			k++
		case k >= len(b):
			out = append(out, a[i])
			i++
		case a[i] < b[k]:
			out = append(out, a[i])
			i++
		case a[i] > b[k]:
			out = append(out, b[k])
			k++
		default:
			out = append(out, a[i])
			i++
			k++
		}
	}
	return out
}
