package job

import "context"

// Task is one pluggable unit of work.
//
// Run must honor ctx: cancellation is cooperative, requested by cancelling
// the context the queue passes in. There is no forced termination.
type Task interface {
	Run(ctx context.Context, h *Header) error
}

// Constructor builds a Task instance for a header. Registered in a Registry
// under the task type name.
type Constructor func(h *Header) (Task, error)

// Defaulter is an optional Task capability. PropertyDefaults returns default
// properties merged into the header before the job is queued: keys already
// present in the header always win. The incoming properties may be used to
// compute the defaults.
type Defaulter interface {
	PropertyDefaults(props Properties) Properties
}

// Displayer is an optional Task capability: a one-line, human-readable
// summary of the task's state. It should only expose information derived
// from header properties; anything higher-level is the caller's concern.
type Displayer interface {
	Display(h *Header) string
}

// Display returns the task's Display output, or "" when not implemented.
func Display(t Task, h *Header) string {
	if d, ok := t.(Displayer); ok {
		return d.Display(h)
	}
	return ""
}
