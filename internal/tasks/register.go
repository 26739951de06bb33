package tasks

import "jobd/internal/job"

// RegisterBuiltins installs the built-in task constructors.
func RegisterBuiltins(r *job.Registry) error {
	return r.Register(BlockerType, NewBlocker)
}
