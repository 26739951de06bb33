package sched

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuchSchedule = errors.New("no such schedule")

	// ErrDayRecalc is returned when the day-of-month recomputation after a
	// month rollover itself rolls over again. Believed reachable only in
	// rare multi-month edge cases; surfaced rather than silently producing
	// a wrong date.
	ErrDayRecalc = errors.New("could not recalculate day of month")
)

// ParseError describes a malformed cron expression. Cron holds the string
// after macro substitution.
type ParseError struct {
	Cron string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bad schedule %q: %s", e.Cron, e.Msg)
}
