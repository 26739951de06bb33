package app

import (
	"context"
	"sort"

	"jobd/internal/job"
	"jobd/internal/sched"
	logx "jobd/pkg/logx"
)

// restore reloads persisted state before the loops start: schedule ids are
// seeded past the highest id ever issued, schedules are re-activated, and
// unfinished jobs are resubmitted (or discarded when resume is off).
// A record that no longer decodes, or whose task type is gone, is dropped
// from the store rather than wedging startup.
func (a *App) restore(ctx context.Context) error {
	if a.store == nil {
		a.schedIDs = job.NewIDSource(0)
		return nil
	}

	last, err := a.store.LastScheduleID(ctx)
	if err != nil {
		return err
	}

	scheds, err := a.store.ListSchedules(ctx)
	if err != nil {
		return err
	}
	// Belt and braces: a store written before the id counter was tracked
	// only has the schedule rows themselves.
	for id := range scheds {
		if id > last {
			last = id
		}
	}
	a.schedIDs = job.NewIDSource(last + 1)

	restored := 0
	for _, id := range sortedIDs(scheds) {
		h, err := sched.DecodeHeader(scheds[id])
		if err == nil {
			// The store key is authoritative for the id.
			h.ID = id
			err = a.cron.Create(ctx, h)
		}
		if err != nil {
			a.log.Warn("dropping unrestorable schedule",
				logx.Int64("schedule", id), logx.Err(err))
			if derr := a.store.DeleteSchedule(ctx, id); derr != nil {
				return derr
			}
			continue
		}
		restored++
	}
	if restored > 0 {
		a.log.Info("schedules restored", logx.Int("count", restored))
	}

	return a.resume(ctx)
}

// resume requeues persisted unfinished jobs. Old records are removed first:
// resubmission assigns a fresh id and writes a fresh record through the
// submit hook.
func (a *App) resume(ctx context.Context) error {
	jobs, err := a.store.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	if !a.resumeJobs {
		a.log.Info("discarding persisted jobs (resume disabled)", logx.Int("count", len(jobs)))
		for id := range jobs {
			if err := a.store.DeleteJob(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	resumed := 0
	// Old ids only order the resubmission; fresh ids are assigned.
	for _, id := range sortedIDs(jobs) {
		raw := jobs[id]
		if err := a.store.DeleteJob(ctx, id); err != nil {
			return err
		}
		j, err := a.factory.JobFromJSON(raw)
		if err != nil {
			a.log.Warn("dropping unresumable job", logx.Int64("job", id), logx.Err(err))
			continue
		}
		if err := a.queue.Submit(ctx, j); err != nil {
			return err
		}
		resumed++
	}
	if resumed > 0 {
		a.log.Info("jobs resumed", logx.Int("count", resumed))
	}
	return nil
}

func sortedIDs(m map[int64][]byte) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids
}
