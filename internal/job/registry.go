package job

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	logx "jobd/pkg/logx"
)

// Registry maps task type names to task constructors. It is a closed
// registry: string key in, constructor out, no reflection.
type Registry struct {
	log logx.Logger

	mu    sync.Mutex
	tasks map[string]Constructor
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, tasks: map[string]Constructor{}}
}

// Register records a constructor under the given task type name.
// Registering a name twice is rejected, not overwritten.
func (r *Registry) Register(taskType string, ctor Constructor) error {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return fmt.Errorf("task type name is required")
	}
	if ctor == nil {
		return fmt.Errorf("task %q: constructor is nil", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskType]; ok {
		return fmt.Errorf("task %q: %w", taskType, ErrTaskRegistered)
	}
	r.tasks[taskType] = ctor
	return nil
}

// Unregister removes a task type. Removing an unknown name is tolerated so
// teardown stays idempotent. Already-constructed Job instances are unaffected.
func (r *Registry) Unregister(taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskType]; !ok {
		r.log.Warn("task not in registry, not unregistering", logx.String("task_type", taskType))
		return
	}
	delete(r.tasks, taskType)
}

// Resolve returns the constructor for a task type name.
func (r *Registry) Resolve(taskType string) (Constructor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctor, ok := r.tasks[taskType]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", taskType, ErrUnknownTask)
	}
	return ctor, nil
}

func (r *Registry) Contains(taskType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[taskType]
	return ok
}

// Types returns the registered task type names, sorted.
func (r *Registry) Types() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}
