package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"praypal/internal/config"
	"praypal/internal/eventbus"
	"praypal/internal/notifier"
	"praypal/internal/prayertimes"
	"praypal/internal/reminder"
	rtsup "praypal/internal/runtime/supervisor"
	"praypal/internal/storage"
	"praypal/internal/task/engine"
	"praypal/internal/task/scheduler"
	kit "praypal/internal/transport"
	telegram "praypal/internal/transport/telegram/adapter"
	"praypal/internal/transport/telegram/router"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	root logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	times   *prayertimes.Client
	adapter kit.Adapter

	engine    *engine.Service
	sched     *scheduler.Service
	notif     *notifier.Service
	reminders *reminder.Scheduler
	reinit    *reminder.Reinitializer
	router    *router.Router

	settings remindersSettings
	updates  chan kit.Update
}

func NewApp(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	if err := applyAlertSink(logSvc, cfg, root); err != nil {
		return nil, err
	}

	// Resolve everything before opening resources.
	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	ptcfg, err := mapPrayerTimesConfig(cfg)
	if err != nil {
		return nil, err
	}
	rs, err := mapRemindersConfig(cfg)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, root)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(scfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()
	log.Info("storage opened", logx.String("driver", scfg.Driver), logx.String("path", scfg.Path))

	times, err := prayertimes.New(ptcfg, root)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	clk := clock.NewRealClock()

	engineSvc := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, root.With(logx.String("comp", "scheduler")), bus)
	notifSvc := notifier.New(ncfg, ad, root, bus)

	reminders := reminder.NewScheduler(rs.Scheduler, reminder.Deps{
		Fetcher: times,
		Store:   store,
		Sender:  notifSvc,
		Timers:  schedSvc,
		Clock:   clk,
	}, root, bus)
	reinit := reminder.NewReinitializer(rs.Reinit, store, reminders, clk, root, bus)

	rt := router.New(mapRouterConfig(rs), router.Deps{
		Adapter:   ad,
		Store:     store,
		Fetcher:   times,
		Reminders: reminders,
		Clock:     clk,
	}, root)

	return &App{
		cfgm:      cfgm,
		log:       log,
		root:      root,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		times:     times,
		adapter:   ad,
		engine:    engineSvc,
		sched:     schedSvc,
		notif:     notifSvc,
		reminders: reminders,
		reinit:    reinit,
		router:    rt,
		settings:  rs,
		updates:   make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// A reload is committed only if every section still maps cleanly.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMappings(cfg)
	})

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	a.syncPeriodicJobs(a.cfgm.Get(), a.settings)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("telegram.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if a.settings.ReinitOnStart {
		a.sup.Go0("reminders.reinit.startup", func(c context.Context) {
			_ = a.runReinit(c)
		})
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started")
	return nil
}

// restartSections cannot change while running.
var restartSections = []string{"telegram", "storage", "prayer_times", "task_engine"}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))
	if err := applyAlertSink(a.logs, newCfg, a.root); err != nil {
		a.log.Warn("invalid alerts config; keeping previous", logx.Err(err))
	}

	a.sched.Apply(mapSchedulerConfig(newCfg))
	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if rs, err := mapRemindersConfig(newCfg); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else {
		a.syncPeriodicJobs(newCfg, rs)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Timers first so nothing new reaches the engine.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("prayertimes", time.Second, func(context.Context) error { a.times.Close(); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// applyAlertSink installs or clears the operator email sink.
func applyAlertSink(svc *logx.Service, cfg *config.Config, log logx.Logger) error {
	m, err := buildAlertSink(cfg, log)
	if err != nil {
		return err
	}
	if m == nil {
		svc.SetAlertSink(nil)
		return nil
	}
	svc.SetAlertSink(m)
	return nil
}

func validateMappings(cfg *config.Config) error {
	var errs []error
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPrayerTimesConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapRemindersConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := buildAlertSink(cfg, logx.Nop()); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}
