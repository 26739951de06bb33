package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"jobd/internal/eventbus"
	logx "jobd/pkg/logx"
)

// Callback is a lifecycle hook. Callbacks may perform I/O (persistence
// writes); the triggering operation is not considered complete until the
// callback returns.
type Callback func(ctx context.Context, h *Header) error

// Queue is a single job queue. It runs one job at a time, in strict
// submission order.
//
// The lifecycle hooks are single-subscriber slots: registering a callback
// replaces any previous one. Embedders relying on last-registration-wins is
// part of the contract; this is deliberately not a fan-out list.
type Queue struct {
	log logx.Logger
	bus eventbus.Bus

	mu   sync.Mutex
	fifo []*Job
	wake chan struct{}

	// jobs is the source of truth for "does job X exist", keyed by id.
	// The fifo itself doesn't support peeking.
	jobs map[int64]*Job

	active       *Job
	activeCancel context.CancelFunc

	submitCB Callback
	startCB  Callback
	stopCB   Callback
	cancelCB Callback
}

// NewQueue creates a queue. bus may be nil; lifecycle events are then not
// published.
func NewQueue(log logx.Logger, bus eventbus.Bus) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{
		log:  log,
		bus:  bus,
		wake: make(chan struct{}, 1),
		jobs: map[int64]*Job{},
	}
}

// OnSubmit registers the submit hook (last registration wins).
func (q *Queue) OnSubmit(cb Callback) { q.mu.Lock(); q.submitCB = cb; q.mu.Unlock() }

// OnStart registers the start hook (last registration wins).
func (q *Queue) OnStart(cb Callback) { q.mu.Lock(); q.startCB = cb; q.mu.Unlock() }

// OnStop registers the stop hook (last registration wins).
func (q *Queue) OnStop(cb Callback) { q.mu.Lock(); q.stopCB = cb; q.mu.Unlock() }

// OnCancel registers the cancel hook (last registration wins).
func (q *Queue) OnCancel(cb Callback) { q.mu.Lock(); q.cancelCB = cb; q.mu.Unlock() }

func (q *Queue) callback(pick func(*Queue) Callback) Callback {
	q.mu.Lock()
	defer q.mu.Unlock()
	return pick(q)
}

// Submit appends a job to the queue. The submit hook fires (and must
// succeed) before the job is enqueued, so persistence happens first; a hook
// error aborts the submission.
func (q *Queue) Submit(ctx context.Context, j *Job) error {
	if cb := q.callback(func(q *Queue) Callback { return q.submitCB }); cb != nil {
		if err := cb(ctx, j.Header); err != nil {
			return fmt.Errorf("submit callback: %w", err)
		}
	}

	q.mu.Lock()
	q.fifo = append(q.fifo, j)
	q.jobs[j.Header.ID] = j
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.publish(eventbus.TypeJobSubmitted, j.Header)
	return nil
}

// Cancel marks a job cancelled and drops it from tracking. If the job is
// currently running, its execution context is cancelled too; if it is still
// queued, the run loop's pre-flight check will skip it at dequeue time. The
// cancel hook fires now, not at that later dequeue.
func (q *Queue) Cancel(ctx context.Context, id int64) error {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("job %d: %w", id, ErrNoSuchJob)
	}
	j.Header.MarkCancelled()
	if q.active == j && q.activeCancel != nil {
		q.activeCancel()
	}
	cb := q.cancelCB
	q.mu.Unlock()

	if cb != nil {
		if err := cb(ctx, j.Header); err != nil {
			return fmt.Errorf("cancel callback: %w", err)
		}
	}

	q.mu.Lock()
	delete(q.jobs, id)
	q.mu.Unlock()

	q.publish(eventbus.TypeJobCancelled, j.Header)
	return nil
}

// CancelAll cancels every tracked job, highest id first so the running job
// (lowest id most of the time) is not cancelled over and over while its
// successors start behind it.
func (q *Queue) CancelAll(ctx context.Context) error {
	q.mu.Lock()
	ids := make([]int64, 0, len(q.jobs))
	for id := range q.jobs {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	sort.Slice(ids, func(i, k int) bool { return ids[i] > ids[k] })
	for _, id := range ids {
		if err := q.Cancel(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning reports whether the given job is the one actively running.
func (q *Queue) IsRunning(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil && q.active.Header.ID == id
}

// Lookup returns a tracked job by id.
func (q *Queue) Lookup(id int64) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	return j, ok
}

// Jobs returns a copy of the tracking map, for display purposes.
func (q *Queue) Jobs() map[int64]*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make(map[int64]*Job, len(q.jobs))
	for id, j := range q.jobs {
		cp[id] = j
	}
	return cp
}

// Len reports the number of tracked jobs (queued plus running).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Run is the queue's driver loop. It consumes one job at a time until ctx is
// cancelled. Task errors, task panics, and cancellations are contained and
// logged; only a failing lifecycle callback stops the loop. The loop does
// not restart itself; callers restart it explicitly if desired (internal/app
// runs it under a supervisor).
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("starting job queue")
	defer q.log.Info("job queue stopped")

	for {
		j := q.next(ctx)
		if j == nil {
			return ctx.Err()
		}
		if err := q.runOne(ctx, j); err != nil {
			q.log.Error("job queue stopped unexpectedly", logx.Err(err))
			return err
		}
	}
}

// next blocks until a job is available or ctx is done.
func (q *Queue) next(ctx context.Context) *Job {
	for {
		q.mu.Lock()
		if len(q.fifo) > 0 {
			j := q.fifo[0]
			q.fifo = q.fifo[1:]
			q.mu.Unlock()
			return j
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		}
	}
}

func (q *Queue) runOne(ctx context.Context, j *Job) error {
	h := j.Header

	// Pre-flight: a job cancelled while still queued is skipped without ever
	// invoking its task body. Its cancel hook already fired at cancel time.
	if h.Cancelled() {
		q.log.Info("skipping cancelled job", logx.Int64("job", h.ID))
		j.markComplete()
		q.clearActive(h.ID)
		return nil
	}

	q.log.Info("starting job",
		logx.Int64("job", h.ID),
		logx.String("task_type", h.TaskType),
		logx.Int64("owner", h.OwnerID),
		logx.Int64("guild", h.GuildID),
	)

	runCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.active = j
	q.activeCancel = cancel
	q.mu.Unlock()

	if cb := q.callback(func(q *Queue) Callback { return q.startCB }); cb != nil {
		if err := cb(ctx, h); err != nil {
			cancel()
			j.markComplete()
			q.clearActive(h.ID)
			return fmt.Errorf("start callback: %w", err)
		}
	}
	q.publish(eventbus.TypeJobStarted, h)

	started := time.Now()
	err := q.runTask(runCtx, j)
	cancel()

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		// Cancelled via Cancel(), not shutdown.
		q.log.Warn("job cancelled", logx.Int64("job", h.ID), logx.Duration("ran", time.Since(started)))
	case err != nil:
		q.log.Error("job failed", logx.Int64("job", h.ID), logx.Err(err), logx.Duration("ran", time.Since(started)))
	default:
		q.log.Info("job finished", logx.Int64("job", h.ID), logx.Duration("ran", time.Since(started)))
	}

	// Notify any listeners on this job that it's done, then drop bookkeeping.
	j.markComplete()
	q.clearActive(h.ID)

	if cb := q.callback(func(q *Queue) Callback { return q.stopCB }); cb != nil {
		if err := cb(ctx, h); err != nil {
			return fmt.Errorf("stop callback: %w", err)
		}
	}
	q.publish(eventbus.TypeJobFinished, h)
	return nil
}

// runTask invokes the task body, converting panics to errors so one bad
// task can't kill the driver loop.
func (q *Queue) runTask(ctx context.Context, j *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			q.log.Error("task panicked",
				logx.Int64("job", j.Header.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	return j.Task.Run(ctx, j.Header)
}

func (q *Queue) clearActive(id int64) {
	q.mu.Lock()
	delete(q.jobs, id)
	q.active = nil
	q.activeCancel = nil
	q.mu.Unlock()
}

func (q *Queue) publish(eventType string, h *Header) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventbus.Event{Type: eventType, Data: h.Map()})
}
