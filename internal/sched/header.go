package sched

import (
	"encoding/json"
	"sync"
	"time"

	"jobd/internal/job"
)

// Header carries the identity and recurrence metadata of one schedule
// entry.
//
// The exported fields define the persisted JSON shape exactly:
//
//	{id, properties, task_type, owner_id, guild_id, schedule}
//
// Unlike job ids, schedule ids stay stable across restarts: the embedder
// seeds the schedule-id allocator past the highest id ever persisted, and
// ids are never reused.
type Header struct {
	ID         int64          `json:"id"`
	Properties job.Properties `json:"properties"`
	TaskType   string         `json:"task_type"`

	// OwnerID identifies the user that owns this schedule; GuildID the
	// tenant it was created in.
	OwnerID int64 `json:"owner_id"`
	GuildID int64 `json:"guild_id"`

	// Schedule is the cron string, in classic crontab format (see package
	// doc). Example: "1 4 * * 0" runs the job at 4:01 am every Sunday.
	Schedule string `json:"schedule"`

	// next is runtime-only: the next computed fire time, nil until first
	// computed and cleared on deletion. Never persisted.
	mu   sync.Mutex
	next *time.Time
}

// DecodeHeader rebuilds a schedule header from a persisted JSON record.
// The stored id is kept; schedule ids survive restarts.
func DecodeHeader(raw []byte) (*Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Next returns the next computed fire time, if any.
func (h *Header) Next() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next == nil {
		return time.Time{}, false
	}
	return *h.next, true
}

func (h *Header) clearNext() {
	h.mu.Lock()
	h.next = nil
	h.mu.Unlock()
}

// UpdateNext recomputes the next run strictly after "from". This reparses
// the schedule string, so it doubles as validation. Carry is 1 to avoid
// refiring on a minute that already matches.
func (h *Header) UpdateNext(from time.Time) error {
	sp, err := Parse(h.Schedule)
	if err != nil {
		return err
	}
	next, err := NextTime(sp, from, 1)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.next = &next
	h.mu.Unlock()
	return nil
}

// JobHeader derives a job header for one firing of this schedule. The
// caller supplies the fresh job id and submission timestamp; properties are
// copied so the task cannot mutate the schedule's own set.
func (h *Header) JobHeader(id int64, startTime int64) *job.Header {
	sid := h.ID
	return &job.Header{
		ID:         id,
		TaskType:   h.TaskType,
		Properties: h.Properties.Clone(),
		OwnerID:    h.OwnerID,
		GuildID:    h.GuildID,
		StartTime:  startTime,
		ScheduleID: &sid,
	}
}

// Clone deep-copies the header (properties included). The runtime next
// value is not carried over; clones start unscheduled.
func (h *Header) Clone() *Header {
	return &Header{
		ID:         h.ID,
		Properties: h.Properties.Clone(),
		TaskType:   h.TaskType,
		OwnerID:    h.OwnerID,
		GuildID:    h.GuildID,
		Schedule:   h.Schedule,
	}
}

// Map returns the persisted shape as a generic mapping, for event payloads
// and log output.
func (h *Header) Map() map[string]any {
	return map[string]any{
		"id":         h.ID,
		"properties": h.Properties,
		"task_type":  h.TaskType,
		"owner_id":   h.OwnerID,
		"guild_id":   h.GuildID,
		"schedule":   h.Schedule,
	}
}
