package job

import (
	"encoding/json"
	"sync"
)

// Properties is the opaque argument mapping passed to a task.
type Properties map[string]any

// Clone returns a shallow copy (values are shared, the map is not).
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	cp := make(Properties, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Header carries the identity and execution metadata of one job instance.
//
// The exported fields define the persisted JSON shape exactly:
//
//	{id, properties, schedule_id, owner_id, guild_id, start_time, task_type}
//
// Cancel flag and results are runtime-only and never persisted.
type Header struct {
	ID         int64      `json:"id"`
	Properties Properties `json:"properties"`

	// ScheduleID references the schedule that spawned this job, if any.
	ScheduleID *int64 `json:"schedule_id"`

	// OwnerID identifies the user that started this job. If the job was
	// started by a schedule, this reflects the owner of the schedule.
	OwnerID int64 `json:"owner_id"`

	// GuildID identifies the tenant the job was started in.
	GuildID int64 `json:"guild_id"`

	// StartTime is the submission time, as a unix timestamp in UTC.
	StartTime int64 `json:"start_time"`

	TaskType string `json:"task_type"`

	mu        sync.Mutex
	cancelled bool
	results   Properties
}

// DecodeHeader builds a Header from a previously persisted JSON record.
// Any id in the input is discarded; the caller supplies a fresh one. Job ids
// are never stable across restarts.
func DecodeHeader(id int64, raw []byte) (*Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	h.ID = id
	return &h, nil
}

// MarkCancelled sets the runtime cancel flag. The queue's run loop checks it
// before starting a dequeued job.
func (h *Header) MarkCancelled() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

func (h *Header) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// SetResult records a task result. Safe to call from the task body while
// other goroutines inspect the header.
func (h *Header) SetResult(key string, value any) {
	h.mu.Lock()
	if h.results == nil {
		h.results = Properties{}
	}
	h.results[key] = value
	h.mu.Unlock()
}

// Results returns a copy of the results recorded so far.
func (h *Header) Results() Properties {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results.Clone()
}

// Map returns the persisted shape as a generic mapping, for event payloads
// and log output.
func (h *Header) Map() map[string]any {
	var sid any
	if h.ScheduleID != nil {
		sid = *h.ScheduleID
	}
	return map[string]any{
		"id":          h.ID,
		"properties":  h.Properties,
		"schedule_id": sid,
		"owner_id":    h.OwnerID,
		"guild_id":    h.GuildID,
		"start_time":  h.StartTime,
		"task_type":   h.TaskType,
	}
}
