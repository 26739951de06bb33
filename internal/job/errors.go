package job

import "errors"

var (
	ErrUnknownTask    = errors.New("unknown task type")
	ErrTaskRegistered = errors.New("task type already registered")
	ErrNoSuchJob      = errors.New("no such job")
)
