package job

import (
	"fmt"
	"time"
)

// Factory builds headers and runnable jobs. It owns the job-id space; every
// construction path stamps a fresh id from the same counter.
type Factory struct {
	ids      *IDSource
	registry *Registry

	now func() time.Time
}

func NewFactory(registry *Registry) *Factory {
	return &Factory{
		ids:      NewIDSource(0),
		registry: registry,
		now:      time.Now,
	}
}

// NextID allocates the next job id. Exposed so the scheduler can stamp
// headers it derives from schedule entries.
func (f *Factory) NextID() int64 { return f.ids.Next() }

// Now returns the factory clock (unix seconds). Tests may swap the clock.
func (f *Factory) Now() int64 { return f.now().Unix() }

// NewHeader builds a header for a direct request, stamping a fresh id and
// the current time. scheduleID is nil unless the request comes from a
// schedule firing.
func (f *Factory) NewHeader(taskType string, props Properties, ownerID, guildID int64, scheduleID *int64) (*Header, error) {
	if !f.registry.Contains(taskType) {
		return nil, fmt.Errorf("task %q: %w", taskType, ErrUnknownTask)
	}
	return &Header{
		ID:         f.ids.Next(),
		TaskType:   taskType,
		Properties: props,
		OwnerID:    ownerID,
		GuildID:    guildID,
		StartTime:  f.now().Unix(),
		ScheduleID: scheduleID,
	}, nil
}

// HeaderFromJSON rebuilds a header from a persisted record, assigning a
// fresh id (persisted job ids are discarded; see DecodeHeader).
func (f *Factory) HeaderFromJSON(raw []byte) (*Header, error) {
	return DecodeHeader(f.ids.Next(), raw)
}

// Job resolves the header's task type, constructs the task, and merges the
// task's declared property defaults into the header. Caller-supplied
// properties always win over defaults; the merge happens here, before the
// job is ever queued, so resumed, scheduled, and direct jobs all observe
// identical effective properties.
func (f *Factory) Job(h *Header) (*Job, error) {
	ctor, err := f.registry.Resolve(h.TaskType)
	if err != nil {
		return nil, err
	}
	task, err := ctor(h)
	if err != nil {
		return nil, fmt.Errorf("task %q: construct: %w", h.TaskType, err)
	}

	if d, ok := task.(Defaulter); ok {
		if defaults := d.PropertyDefaults(h.Properties); defaults != nil {
			merged := defaults.Clone()
			for k, v := range h.Properties {
				merged[k] = v
			}
			h.Properties = merged
		}
	}

	return newJob(h, task), nil
}

// JobFromJSON is the resume path: persisted record in, runnable job out.
func (f *Factory) JobFromJSON(raw []byte) (*Job, error) {
	h, err := f.HeaderFromJSON(raw)
	if err != nil {
		return nil, err
	}
	return f.Job(h)
}
