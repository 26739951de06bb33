package sched

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"jobd/internal/job"
	logx "jobd/pkg/logx"
)

type noopTask struct{}

func (noopTask) Run(ctx context.Context, h *job.Header) error { return nil }

type cronHarness struct {
	cron    *Cron
	queue   *job.Queue
	factory *job.Factory
	now     time.Time
}

func newCronHarness(t *testing.T) *cronHarness {
	t.Helper()
	h := &cronHarness{now: at(2024, time.March, 15, 10, 0)}

	reg := job.NewRegistry(logx.Nop())
	if err := reg.Register("noop", func(*job.Header) (job.Task, error) { return noopTask{}, nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.factory = job.NewFactory(reg)
	h.queue = job.NewQueue(logx.Nop(), nil)
	h.cron = New(Config{Tick: time.Minute, Now: func() time.Time { return h.now }},
		h.queue, h.factory, logx.Nop(), nil)
	return h
}

func (h *cronHarness) sweep(t *testing.T) {
	t.Helper()
	h.cron.mu.Lock()
	err := h.cron.sweepLocked(context.Background())
	h.cron.mu.Unlock()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func schedHeader(id int64, cronstr string) *Header {
	return &Header{
		ID:       id,
		TaskType: "noop",
		Schedule: cronstr,
		OwnerID:  100,
		GuildID:  200,
	}
}

func TestCreateComputesNext(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	sh := schedHeader(1, "30 10 * * *")
	if err := hn.cron.Create(context.Background(), sh); err != nil {
		t.Fatalf("Create: %v", err)
	}
	next, ok := sh.Next()
	if !ok {
		t.Fatal("expected next run to be computed")
	}
	want := at(2024, time.March, 15, 10, 30)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestCreateRejectsBadCron(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	fired := false
	hn.cron.OnCreate(func(context.Context, *Header) error { fired = true; return nil })

	err := hn.cron.Create(context.Background(), schedHeader(1, "not a cron string"))
	if err == nil {
		t.Fatal("expected error for invalid cron string")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error type %T, want *ParseError", err)
	}
	if fired {
		t.Fatal("create callback fired for rejected schedule")
	}
	if n := len(hn.cron.Snapshot()); n != 0 {
		t.Fatalf("snapshot has %d schedules, want 0", n)
	}
}

func TestCreateCallbackErrorAborts(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	boom := errors.New("persist failed")
	hn.cron.OnCreate(func(context.Context, *Header) error { return boom })

	err := hn.cron.Create(context.Background(), schedHeader(1, "30 10 * * *"))
	if !errors.Is(err, boom) {
		t.Fatalf("Create error = %v, want %v", err, boom)
	}
	if n := len(hn.cron.Snapshot()); n != 0 {
		t.Fatalf("snapshot has %d schedules, want 0", n)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	sh := schedHeader(1, "30 10 * * *")
	if err := hn.cron.Create(context.Background(), sh); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var deleted []int64
	hn.cron.OnDelete(func(_ context.Context, h *Header) error {
		deleted = append(deleted, h.ID)
		return nil
	})

	if err := hn.cron.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != 1 {
		t.Fatalf("delete callback saw %v, want [1]", deleted)
	}
	if _, ok := sh.Next(); ok {
		t.Fatal("next still set after delete")
	}
	if err := hn.cron.Delete(context.Background(), 1); !errors.Is(err, ErrNoSuchSchedule) {
		t.Fatalf("second delete error = %v, want ErrNoSuchSchedule", err)
	}
}

func TestReplaceCallbackOrder(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	if err := hn.cron.Create(context.Background(), schedHeader(1, "30 10 * * *")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var order []string
	hn.cron.OnDelete(func(_ context.Context, h *Header) error {
		order = append(order, fmt.Sprintf("del:%s", h.Schedule))
		return nil
	})
	hn.cron.OnCreate(func(_ context.Context, h *Header) error {
		order = append(order, fmt.Sprintf("create:%s", h.Schedule))
		return nil
	})

	if err := hn.cron.Replace(context.Background(), 1, schedHeader(1, "0 12 * * *")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if len(order) != 2 || order[0] != "del:30 10 * * *" || order[1] != "create:0 12 * * *" {
		t.Fatalf("callback order = %v, want [del:30 10 * * * create:0 12 * * *]", order)
	}
	snap := hn.cron.Snapshot()
	if snap[1].Schedule != "0 12 * * *" {
		t.Fatalf("schedule after replace = %q, want %q", snap[1].Schedule, "0 12 * * *")
	}
}

func TestReschedule(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	if err := hn.cron.Create(context.Background(), schedHeader(7, "30 10 * * *")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := hn.cron.Reschedule(context.Background(), 7, "0 18 * * *"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	snap := hn.cron.Snapshot()
	sh, ok := snap[7]
	if !ok {
		t.Fatal("schedule 7 missing after reschedule")
	}
	if sh.Schedule != "0 18 * * *" {
		t.Fatalf("schedule = %q, want %q", sh.Schedule, "0 18 * * *")
	}

	if err := hn.cron.Reschedule(context.Background(), 99, "0 18 * * *"); !errors.Is(err, ErrNoSuchSchedule) {
		t.Fatalf("reschedule unknown id error = %v, want ErrNoSuchSchedule", err)
	}
}

func TestSweepFiresDue(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	sh := schedHeader(1, "30 10 * * *")
	if err := hn.cron.Create(context.Background(), sh); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Not due yet.
	hn.sweep(t)
	if n := hn.queue.Len(); n != 0 {
		t.Fatalf("queue has %d jobs before due time, want 0", n)
	}

	// Past due: the sweep must submit exactly one job and push next forward.
	hn.now = at(2024, time.March, 15, 11, 0)
	hn.sweep(t)
	if n := hn.queue.Len(); n != 1 {
		t.Fatalf("queue has %d jobs after due sweep, want 1", n)
	}

	next, ok := sh.Next()
	if !ok {
		t.Fatal("next cleared by sweep")
	}
	want := at(2024, time.March, 16, 10, 30)
	if !next.Equal(want) {
		t.Fatalf("next after sweep = %v, want %v", next, want)
	}

	// Same sweep again: nothing new fires.
	hn.sweep(t)
	if n := hn.queue.Len(); n != 1 {
		t.Fatalf("queue has %d jobs after repeat sweep, want 1", n)
	}

	// The submitted job carries the schedule linkage.
	for _, j := range hn.queue.Jobs() {
		if j.Header.ScheduleID == nil || *j.Header.ScheduleID != 1 {
			t.Fatalf("job schedule id = %v, want 1", j.Header.ScheduleID)
		}
		if j.Header.OwnerID != 100 || j.Header.GuildID != 200 {
			t.Fatalf("job owner/guild = %d/%d, want 100/200", j.Header.OwnerID, j.Header.GuildID)
		}
	}
}

func TestRunNowLeavesNextUntouched(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	sh := schedHeader(1, "30 10 * * *")
	if err := hn.cron.Create(context.Background(), sh); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, _ := sh.Next()

	j, err := hn.cron.RunNow(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if j == nil || j.Header.ScheduleID == nil || *j.Header.ScheduleID != 1 {
		t.Fatal("RunNow did not produce a schedule-linked job")
	}
	if n := hn.queue.Len(); n != 1 {
		t.Fatalf("queue has %d jobs, want 1", n)
	}

	after, _ := sh.Next()
	if !after.Equal(before) {
		t.Fatalf("next changed by RunNow: %v -> %v", before, after)
	}

	if _, err := hn.cron.RunNow(context.Background(), 99); !errors.Is(err, ErrNoSuchSchedule) {
		t.Fatalf("RunNow unknown id error = %v, want ErrNoSuchSchedule", err)
	}
}

func TestFilterReturnsClones(t *testing.T) {
	t.Parallel()
	hn := newCronHarness(t)

	a := schedHeader(1, "30 10 * * *")
	b := schedHeader(2, "0 12 * * *")
	b.OwnerID = 999
	for _, sh := range []*Header{a, b} {
		if err := hn.cron.Create(context.Background(), sh); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	mine := hn.cron.Filter(func(h *Header) bool { return h.OwnerID == 999 })
	if len(mine) != 1 {
		t.Fatalf("filter returned %d schedules, want 1", len(mine))
	}

	// Mutating the copy must not leak into the live set.
	mine[2].Schedule = "changed"
	if got := hn.cron.Snapshot()[2].Schedule; got != "0 12 * * *" {
		t.Fatalf("live schedule mutated through filter copy: %q", got)
	}
}
