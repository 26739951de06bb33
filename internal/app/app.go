package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jobd/internal/config"
	"jobd/internal/eventbus"
	"jobd/internal/job"
	"jobd/internal/runtime/supervisor"
	"jobd/internal/sched"
	"jobd/internal/storage"
	"jobd/internal/tasks"
	logx "jobd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	registry *job.Registry
	factory  *job.Factory
	queue    *job.Queue
	cron     *sched.Cron

	schedEnabled bool
	resumeJobs   bool

	// schedIDs allocates schedule ids. Seeded past the persisted maximum in
	// Start so restored and new schedules never collide.
	schedIDs *job.IDSource
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	logSvc, log := logx.New(mapLogConfig(cfg.Logging), bus)
	log = log.With(logx.String("comp", "app"))

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	registry := job.NewRegistry(log.With(logx.String("comp", "registry")))
	if err := tasks.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	factory := job.NewFactory(registry)
	queue := job.NewQueue(log.With(logx.String("comp", "queue")), bus)

	tick, err := mapSchedulerTick(cfg)
	if err != nil {
		return nil, err
	}
	clock, err := mapSchedulerClock(cfg)
	if err != nil {
		return nil, err
	}
	cron := sched.New(sched.Config{Tick: tick, Now: clock},
		queue, factory, log.With(logx.String("comp", "sched")), bus)

	a := &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          bus,
		store:        store,
		registry:     registry,
		factory:      factory,
		queue:        queue,
		cron:         cron,
		schedEnabled: cfg.Scheduler.Enabled,
		resumeJobs:   cfg.Queue.Resume,
		schedIDs:     job.NewIDSource(0),
	}
	a.bindStorage()
	return a, nil
}

// Accessors for embedders (an admin surface, tests).
func (a *App) Registry() *job.Registry { return a.registry }
func (a *App) Factory() *job.Factory   { return a.factory }
func (a *App) Queue() *job.Queue       { return a.queue }
func (a *App) Cron() *sched.Cron       { return a.cron }
func (a *App) Bus() eventbus.Bus       { return a.bus }

// NewSchedule builds and activates a schedule, allocating its id. The
// returned header is live; treat it as read-only.
func (a *App) NewSchedule(ctx context.Context, taskType, cronstr string, props job.Properties, ownerID, guildID int64) (*sched.Header, error) {
	if !a.registry.Contains(taskType) {
		return nil, fmt.Errorf("task %q: %w", taskType, job.ErrUnknownTask)
	}
	h := &sched.Header{
		ID:         a.schedIDs.Next(),
		TaskType:   taskType,
		Properties: props,
		OwnerID:    ownerID,
		GuildID:    guildID,
		Schedule:   cronstr,
	}
	if err := a.cron.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// bindStorage wires persistence through the queue and scheduler hooks.
// With no store configured the hooks stay empty.
func (a *App) bindStorage() {
	if a.store == nil {
		return
	}

	a.queue.OnSubmit(func(ctx context.Context, h *job.Header) error {
		raw, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return a.store.PutJob(ctx, h.ID, raw)
	})
	a.queue.OnStop(func(ctx context.Context, h *job.Header) error {
		return a.store.DeleteJob(ctx, h.ID)
	})
	a.queue.OnCancel(func(ctx context.Context, h *job.Header) error {
		return a.store.DeleteJob(ctx, h.ID)
	})

	a.cron.OnCreate(func(ctx context.Context, h *sched.Header) error {
		raw, err := json.Marshal(h)
		if err != nil {
			return err
		}
		if err := a.store.PutSchedule(ctx, h.ID, raw); err != nil {
			return err
		}
		return a.store.SetLastScheduleID(ctx, h.ID)
	})
	a.cron.OnDelete(func(ctx context.Context, h *sched.Header) error {
		return a.store.DeleteSchedule(ctx, h.ID)
	})
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapSchedulerTick(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerClock(cfg); err != nil {
			return err
		}
		if cfg.Logging.Bus.RatePerSec < 0 {
			return fmt.Errorf("logging.bus.rate_per_sec must be >= 0")
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if err := a.restore(a.sup.Context()); err != nil {
		return err
	}

	a.sup.GoRestart("queue.run", func(c context.Context) error {
		return a.queue.Run(c)
	})
	if a.schedEnabled {
		a.sup.GoRestart("sched.run", func(c context.Context) error {
			return a.cron.Run(c)
		})
	} else {
		a.log.Info("scheduler disabled via config")
	}

	// Debug visibility into bus traffic; components subscribe themselves for
	// anything functional.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if e.Type == eventbus.TypeLogLine {
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Bool("scheduler", a.schedEnabled),
		logx.Bool("storage", a.store != nil),
		logx.Any("tasks", a.registry.Types()),
	)
	return nil
}

// applyConfig applies a hot-reloaded config. Logging changes take effect
// live; scheduler and storage changes need a restart and are only reported.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg.Logging))
		case "scheduler", "queue", "storage":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	a.sup.Cancel()

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := a.sup.Wait(waitCtx); err != nil {
		a.log.Warn("shutdown wait", logx.Err(err))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
