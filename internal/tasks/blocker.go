package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"jobd/internal/job"
)

// BlockerType is the registered name of the blocker task.
const BlockerType = "blocker"

// Blocker sleeps for a configurable number of seconds, or forever when the
// "time" property is explicitly null. It exists for exercising the queue:
// fill it with blockers that never end to verify ordering and cancellation.
type Blocker struct {
	counter atomic.Int64
}

func NewBlocker(h *job.Header) (job.Task, error) {
	_ = h
	return &Blocker{}, nil
}

func (b *Blocker) PropertyDefaults(props job.Properties) job.Properties {
	_ = props
	return job.Properties{"time": 60}
}

func (b *Blocker) Run(ctx context.Context, h *job.Header) error {
	secs, infinite, err := blockSeconds(h.Properties)
	if err != nil {
		return err
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	if infinite {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick.C:
			}
		}
	}

	b.counter.Store(secs)
	for b.counter.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			b.counter.Add(-1)
		}
	}
	return nil
}

func (b *Blocker) Display(h *job.Header) string {
	secs, infinite, err := blockSeconds(h.Properties)
	if err != nil || infinite {
		return "time=infinite"
	}
	return fmt.Sprintf("time=%d remaining=%d", secs, b.counter.Load())
}

// blockSeconds reads the "time" property. An explicit null means run until
// cancelled. JSON decoding turns numbers into float64, so both int and
// float64 are accepted.
func blockSeconds(props job.Properties) (int64, bool, error) {
	v, ok := props["time"]
	if !ok || v == nil {
		return 0, true, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), false, nil
	case int64:
		return n, false, nil
	case float64:
		return int64(n), false, nil
	default:
		return 0, false, fmt.Errorf("blocker: property %q must be a number or null, got %T", "time", v)
	}
}
