package sched

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Field order and bounds of a 5-field cron expression.
var (
	fieldNames = [5]string{"minute", "hour", "dayofmonth", "month", "dayofweek"}

	fieldBounds = [5][2]int{
		{0, 59},
		{0, 23},
		{1, 31},
		{1, 12},
		{0, 6},
	}
)

// Three-letter weekday names, accepted in the day-of-week position only.
var weekdayNames = map[string]int{
	"sun": 0,
	"mon": 1,
	"tue": 2,
	"wed": 3,
	"thu": 4,
	"fri": 5,
	"sat": 6,
}

// Schedule macros, substituted textually before parsing. Note that !weekly
// expands to three fields where the others expand to a full tail; a bare
// "!weekly" therefore fails the field count check. Kept as-is for
// compatibility with existing stored schedules.
var macros = [...][2]string{
	{"!weekly", "* * sun"},
	{"!monthly", "1 * *"},
	{"!yearly", "1 1 *"},
	{"!daily", "* * *"},
}

// Spec is a parsed cron expression. A nil field is a wildcard.
type Spec struct {
	Minute     *int
	Hour       *int
	DayOfMonth *int
	Month      *int
	DayOfWeek  *int
}

func (s Spec) field(i int) *int {
	switch i {
	case 0:
		return s.Minute
	case 1:
		return s.Hour
	case 2:
		return s.DayOfMonth
	case 3:
		return s.Month
	default:
		return s.DayOfWeek
	}
}

// Parse is memoized: a schedule string is a pure function of its text, and
// the scheduler re-parses on every recompute.
var parseCache sync.Map // string -> Spec

// Parse converts a cron string into a Spec.
func Parse(schedule string) (Spec, error) {
	if v, ok := parseCache.Load(schedule); ok {
		return v.(Spec), nil
	}
	sp, err := parse(schedule)
	if err != nil {
		return Spec{}, err
	}
	parseCache.Store(schedule, sp)
	return sp, nil
}

func parse(schedule string) (Spec, error) {
	s := strings.ToLower(schedule)
	for _, m := range macros {
		s = strings.ReplaceAll(s, m[0], m[1])
	}

	fields := strings.Fields(s)
	if len(fields) < 5 {
		return Spec{}, &ParseError{Cron: s, Msg: "less than 5 fields"}
	}
	if len(fields) > 5 {
		return Spec{}, &ParseError{Cron: s, Msg: "more than 5 fields"}
	}

	var sp Spec
	out := [5]**int{&sp.Minute, &sp.Hour, &sp.DayOfMonth, &sp.Month, &sp.DayOfWeek}
	for i, elem := range fields {
		if elem == "*" {
			continue
		}
		name := fieldNames[i]

		v, err := strconv.Atoi(elem)
		if err != nil {
			wd, ok := weekdayNames[elem]
			if name != "dayofweek" || !ok {
				return Spec{}, &ParseError{
					Cron: s,
					Msg:  "position " + strconv.Itoa(i) + " (" + name + "): " + elem + " is not an integer",
				}
			}
			v = wd
		}

		lower, upper := fieldBounds[i][0], fieldBounds[i][1]
		if v < lower || v > upper {
			return Spec{}, &ParseError{
				Cron: s,
				Msg: "position " + strconv.Itoa(i) + " (" + name + "): " + elem +
					" outside bounds " + strconv.Itoa(lower) + ".." + strconv.Itoa(upper),
			}
		}
		val := v
		*out[i] = &val
	}
	return sp, nil
}

// Weekday conversion between cron numbering and time.Weekday. Go's
// time.Weekday also counts Sunday as 0, so both directions are the
// identity; the named helpers keep the convention explicit at call sites.
func cronToWeekday(wd int) time.Weekday { return time.Weekday(wd) }
func weekdayToCron(wd time.Weekday) int { return int(wd) }

// Matches reports whether the given moment satisfies the spec: every
// constrained field must equal the corresponding component, wildcards
// always agree. Resolution is one minute; seconds are ignored.
func Matches(sp Spec, t time.Time) bool {
	if sp.Minute != nil && *sp.Minute != t.Minute() {
		return false
	}
	if sp.Hour != nil && *sp.Hour != t.Hour() {
		return false
	}
	if sp.DayOfMonth != nil && *sp.DayOfMonth != t.Day() {
		return false
	}
	if sp.Month != nil && *sp.Month != int(t.Month()) {
		return false
	}
	if sp.DayOfWeek != nil && *sp.DayOfWeek != weekdayToCron(t.Weekday()) {
		return false
	}
	return true
}

// Match parses and matches in one step.
func Match(schedule string, t time.Time) (bool, error) {
	sp, err := Parse(schedule)
	if err != nil {
		return false, err
	}
	return Matches(sp, t), nil
}
