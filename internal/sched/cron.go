package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobd/internal/eventbus"
	"jobd/internal/job"
	logx "jobd/pkg/logx"
)

// Callback is a schedule lifecycle hook (create/delete). Like the queue's
// hooks, these are single-subscriber slots and may perform persistence I/O.
type Callback func(ctx context.Context, h *Header) error

type Config struct {
	// Tick is the dispatch sweep interval. The scheduler targets
	// minute-level accuracy; zero means one minute.
	Tick time.Duration

	// Now overrides the scheduler clock. Nil means time.Now. Wrap it to
	// evaluate schedules in a fixed timezone.
	Now func() time.Time
}

// Cron starts jobs at specific real-world dates. It owns the set of active
// schedule headers; every mutation and the periodic dispatch sweep share
// one lock, so a sweep never observes a schedule mid-mutation and a
// mutation never races a sweep about to fire the same entry.
type Cron struct {
	log logx.Logger
	bus eventbus.Bus

	queue   *job.Queue
	factory *job.Factory

	tick time.Duration
	now  func() time.Time

	mu        sync.Mutex
	schedules map[int64]*Header

	createCB Callback
	deleteCB Callback
}

func New(cfg Config, queue *job.Queue, factory *job.Factory, log logx.Logger, bus eventbus.Bus) *Cron {
	if log.IsZero() {
		log = logx.Nop()
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cron{
		log:       log,
		bus:       bus,
		queue:     queue,
		factory:   factory,
		tick:      tick,
		now:       now,
		schedules: map[int64]*Header{},
	}
}

// OnCreate registers the schedule-created hook (last registration wins).
func (c *Cron) OnCreate(cb Callback) { c.mu.Lock(); c.createCB = cb; c.mu.Unlock() }

// OnDelete registers the schedule-deleted hook (last registration wins).
func (c *Cron) OnDelete(cb Callback) { c.mu.Lock(); c.deleteCB = cb; c.mu.Unlock() }

// Create activates a schedule. The next run date is computed right away,
// which also validates the cron string before anything is persisted or
// installed; the create hook fires after validation and must succeed.
func (c *Cron) Create(ctx context.Context, h *Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(ctx, h)
}

func (c *Cron) createLocked(ctx context.Context, h *Header) error {
	if err := h.UpdateNext(c.now()); err != nil {
		return err
	}

	c.log.Info("new schedule created",
		logx.Int64("schedule", h.ID),
		logx.String("task_type", h.TaskType),
		logx.String("cron", h.Schedule),
	)
	if c.createCB != nil {
		if err := c.createCB(ctx, h); err != nil {
			return fmt.Errorf("create callback: %w", err)
		}
	}

	c.schedules[h.ID] = h
	c.publish(eventbus.TypeSchedCreated, h)
	return nil
}

// Delete stops a schedule from running and drops it.
func (c *Cron) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(ctx, id)
}

func (c *Cron) deleteLocked(ctx context.Context, id int64) error {
	h, ok := c.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %d: %w", id, ErrNoSuchSchedule)
	}
	h.clearNext()

	if c.deleteCB != nil {
		if err := c.deleteCB(ctx, h); err != nil {
			return fmt.Errorf("delete callback: %w", err)
		}
	}

	delete(c.schedules, id)
	c.publish(eventbus.TypeSchedDeleted, h)
	return nil
}

// Replace swaps a schedule entry wholesale. Both the delete hook (old
// header) and the create hook (new header) fire, in that order, so external
// bookkeeping sees a clean remove+add rather than a diff.
func (c *Cron) Replace(ctx context.Context, id int64, h *Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %d: %w", id, ErrNoSuchSchedule)
	}

	h.clearNext()
	if err := h.UpdateNext(c.now()); err != nil {
		return err
	}

	if c.deleteCB != nil {
		if err := c.deleteCB(ctx, old); err != nil {
			return fmt.Errorf("delete callback: %w", err)
		}
	}
	if c.createCB != nil {
		if err := c.createCB(ctx, h); err != nil {
			return fmt.Errorf("create callback: %w", err)
		}
	}

	c.schedules[id] = h
	c.publish(eventbus.TypeSchedDeleted, old)
	c.publish(eventbus.TypeSchedCreated, h)
	return nil
}

// Reschedule replaces just the cron string of an existing schedule,
// routing through Replace.
func (c *Cron) Reschedule(ctx context.Context, id int64, cronstr string) error {
	c.mu.Lock()
	h, ok := c.schedules[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("schedule %d: %w", id, ErrNoSuchSchedule)
	}
	nh := h.Clone()
	c.mu.Unlock()

	nh.Schedule = cronstr
	return c.Replace(ctx, id, nh)
}

// Run is the scheduler's driver loop: once per tick it sweeps the schedule
// set and fires everything whose next run time has passed. Schedule
// mutations block for the duration of a sweep and vice versa. An error
// escaping the sweep itself (callback or submit failure, not a task body)
// is fatal to the loop; callers restart it explicitly if desired.
func (c *Cron) Run(ctx context.Context) error {
	c.log.Info("starting job scheduler", logx.Duration("tick", c.tick))
	defer c.log.Info("job scheduler stopped")

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		c.mu.Lock()
		err := c.sweepLocked(ctx)
		c.mu.Unlock()
		if err != nil {
			c.log.Error("scheduler stopped unexpectedly", logx.Err(err))
			return err
		}
	}
}

// sweepLocked performs one dispatch sweep: any schedule whose computed next
// run is in the past is recomputed first (so it can't double-fire) and then
// submitted.
func (c *Cron) sweepLocked(ctx context.Context) error {
	now := c.now()
	for _, h := range c.schedules {
		next, ok := h.Next()
		if !ok || !next.Before(now) {
			continue
		}
		if err := h.UpdateNext(now); err != nil {
			return err
		}
		if _, err := c.fire(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// fire materializes one job from a schedule header and submits it.
func (c *Cron) fire(ctx context.Context, h *Header) (*job.Job, error) {
	jh := h.JobHeader(c.factory.NextID(), c.factory.Now())
	j, err := c.factory.Job(jh)
	if err != nil {
		return nil, err
	}

	c.log.Info("firing scheduled job",
		logx.Int64("schedule", h.ID),
		logx.Int64("job", j.Header.ID),
		logx.String("task_type", j.Header.TaskType),
		logx.String("task", job.Display(j.Task, j.Header)),
	)
	if err := c.queue.Submit(ctx, j); err != nil {
		return nil, err
	}

	c.publish(eventbus.TypeSchedFired, h)
	return j, nil
}

// RunNow fires a schedule immediately, bypassing the next-time check and
// leaving the computed next run untouched.
func (c *Cron) RunNow(ctx context.Context, id int64) (*job.Job, error) {
	c.mu.Lock()
	h, ok := c.schedules[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("schedule %d: %w", id, ErrNoSuchSchedule)
	}
	return c.fire(ctx, h)
}

// Filter returns copies of the schedules the predicate accepts.
func (c *Cron) Filter(pred func(*Header) bool) map[int64]*Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[int64]*Header{}
	for id, h := range c.schedules {
		if pred == nil || pred(h) {
			out[id] = h.Clone()
		}
	}
	return out
}

// Snapshot returns a copy of every schedule.
func (c *Cron) Snapshot() map[int64]*Header {
	return c.Filter(nil)
}

func (c *Cron) publish(eventType string, h *Header) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: eventType, Data: h.Map()})
}
