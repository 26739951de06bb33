package job

import (
	"context"
	"sync"
)

// Job is one in-flight execution unit: a header plus the task instance that
// will run it.
type Job struct {
	Header *Header
	Task   Task

	done   sync.Once
	doneCh chan struct{}
}

func newJob(h *Header, t Task) *Job {
	return &Job{Header: h, Task: t, doneCh: make(chan struct{})}
}

// markComplete releases every waiter on this job. Idempotent; the signal
// fires exactly once whether the job succeeded, failed, or was cancelled.
func (j *Job) markComplete() {
	j.done.Do(func() { close(j.doneCh) })
}

// Done returns a channel closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.doneCh }

// Wait blocks until the job finishes and returns its results. A ctx
// deadline/cancel is returned as ctx.Err(), distinct from job failure (task
// errors are not propagated to waiters; they are logged by the queue).
func (j *Job) Wait(ctx context.Context) (Properties, error) {
	select {
	case <-j.doneCh:
		return j.Header.Results(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
