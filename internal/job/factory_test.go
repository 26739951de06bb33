package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	logx "jobd/pkg/logx"
)

type defaultedTask struct{}

func (defaultedTask) Run(ctx context.Context, h *Header) error { return nil }

func (defaultedTask) PropertyDefaults(props Properties) Properties {
	return Properties{"a": 1, "b": 2}
}

func newTestFactory(t *testing.T) (*Factory, *Registry) {
	t.Helper()
	reg := NewRegistry(logx.Nop())
	err := reg.Register("defaulted", func(*Header) (Task, error) { return defaultedTask{}, nil })
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return NewFactory(reg), reg
}

func TestNewHeaderStampsFreshIDs(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)

	h1, err := f.NewHeader("defaulted", nil, 10, 20, nil)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	h2, err := f.NewHeader("defaulted", nil, 10, 20, nil)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	if h1.ID == h2.ID {
		t.Fatalf("ids not unique: %d == %d", h1.ID, h2.ID)
	}
	if h2.ID != h1.ID+1 {
		t.Fatalf("ids not sequential: %d then %d", h1.ID, h2.ID)
	}
	if h1.StartTime == 0 {
		t.Fatal("start time not stamped")
	}
	if h1.ScheduleID != nil {
		t.Fatal("direct job has a schedule id")
	}
}

func TestNewHeaderRejectsUnknownTask(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)
	if _, err := f.NewHeader("nope", nil, 0, 0, nil); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("error = %v, want ErrUnknownTask", err)
	}
}

func TestJobMergesPropertyDefaults(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)

	h, err := f.NewHeader("defaulted", Properties{"a": 99}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	if _, err := f.Job(h); err != nil {
		t.Fatalf("Job: %v", err)
	}

	// Caller value wins; missing keys come from the defaults.
	if h.Properties["a"] != 99 {
		t.Fatalf("a = %v, want 99", h.Properties["a"])
	}
	if h.Properties["b"] != 2 {
		t.Fatalf("b = %v, want 2", h.Properties["b"])
	}
}

func TestExplicitNilPropertyBeatsDefault(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)

	h, err := f.NewHeader("defaulted", Properties{"a": nil}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	if _, err := f.Job(h); err != nil {
		t.Fatalf("Job: %v", err)
	}
	if v, ok := h.Properties["a"]; !ok || v != nil {
		t.Fatalf("a = %v (present=%v), want explicit nil", v, ok)
	}
}

func TestHeaderFromJSONDiscardsStoredID(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)

	orig, err := f.NewHeader("defaulted", Properties{"a": 1.0}, 10, 20, nil)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := f.HeaderFromJSON(raw)
	if err != nil {
		t.Fatalf("HeaderFromJSON: %v", err)
	}
	if restored.ID == orig.ID {
		t.Fatalf("restored header reused persisted id %d", orig.ID)
	}
	if restored.TaskType != orig.TaskType || restored.OwnerID != 10 || restored.GuildID != 20 {
		t.Fatal("restored header lost fields")
	}
	if restored.Properties["a"] != 1.0 {
		t.Fatalf("properties = %v, want a=1", restored.Properties)
	}
}

func TestJobFromJSONResume(t *testing.T) {
	t.Parallel()
	f, _ := newTestFactory(t)

	sid := int64(5)
	orig, err := f.NewHeader("defaulted", nil, 10, 20, &sid)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	j, err := f.JobFromJSON(raw)
	if err != nil {
		t.Fatalf("JobFromJSON: %v", err)
	}
	if j.Header.ScheduleID == nil || *j.Header.ScheduleID != 5 {
		t.Fatalf("schedule id = %v, want 5", j.Header.ScheduleID)
	}
	// Defaults are merged on the resume path too.
	if j.Header.Properties["b"] != 2 {
		t.Fatalf("b = %v, want 2", j.Header.Properties["b"])
	}
}
