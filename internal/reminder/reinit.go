package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"praypal/internal/eventbus"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

// Refresher is the Schedule half of a Scheduler.
type Refresher interface {
	Schedule(ctx context.Context, id int64, location string, leadTime *int) (Result, error)
}

type ReinitConfig struct {
	// Interval is the minimum time between two runs. 0 means 72h.
	Interval time.Duration
	// Parallelism bounds concurrent refreshes. 0 means 4.
	Parallelism int
}

// ReinitReport is published on eventbus.ReinitFinished.
type ReinitReport struct {
	Started     time.Time
	Duration    time.Duration
	Subscribers int
	Refreshed   int
	Skipped     int
	Failed      int
}

// Reinitializer re-derives every subscriber's jobs from stored preferences,
// at most once per Interval.
type Reinitializer struct {
	cfg       ReinitConfig
	store     PreferenceStore
	refresher Refresher
	clock     clock.Clock
	log       logx.Logger
	bus       eventbus.Bus

	mu      sync.Mutex
	lastRun time.Time
}

func NewReinitializer(cfg ReinitConfig, store PreferenceStore, refresher Refresher, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Reinitializer {
	if cfg.Interval <= 0 {
		cfg.Interval = 72 * time.Hour
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reinitializer{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		clock:     clk,
		log:       log.With(logx.String("comp", "reinit")),
		bus:       bus,
	}
}

// LastRun returns the time of the last run that proceeded, or zero.
func (r *Reinitializer) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// claim decides whether a run may proceed and stamps it in the same step.
func (r *Reinitializer) claim() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	if !r.lastRun.IsZero() && now.Sub(r.lastRun) < r.cfg.Interval {
		return now, false
	}
	r.lastRun = now
	return now, true
}

// ReinitializeAll refreshes every subscriber with a stored location. ran is
// false when the previous run is more recent than the interval.
func (r *Reinitializer) ReinitializeAll(ctx context.Context) (rep ReinitReport, ran bool) {
	started, ok := r.claim()
	if !ok {
		r.log.Debug("reinit skipped, ran recently", logx.Time("last_run", r.LastRun()))
		return ReinitReport{}, false
	}
	rep.Started = started

	ids, err := r.store.ListSubscriberIDs(ctx)
	if err != nil {
		r.log.Error("reinit: list subscribers failed", logx.Err(err))
		return rep, true
	}
	rep.Subscribers = len(ids)

	var refreshed, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			pref, found, err := r.store.GetPreference(gctx, id)
			switch {
			case err != nil:
				failed.Add(1)
				r.log.Warn("reinit: load preference failed", logx.Subscriber(id), logx.Err(err))
				return nil
			case !found || pref.Location == "":
				skipped.Add(1)
				r.log.Info("reinit: no stored preferences, skipping", logx.Subscriber(id))
				return nil
			}
			if _, err := r.refresher.Schedule(gctx, id, pref.Location, pref.LeadTime); err != nil {
				failed.Add(1)
				r.log.Warn("reinit: refresh failed", logx.Subscriber(id), logx.String("location", pref.Location), logx.Err(err))
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Warn("reinit interrupted", logx.Err(err))
	}

	rep.Refreshed = int(refreshed.Load())
	rep.Skipped = int(skipped.Load())
	rep.Failed = int(failed.Load())
	rep.Duration = r.clock.Now().Sub(started)
	r.log.Info("reinit finished",
		logx.Int("subscribers", rep.Subscribers),
		logx.Int("refreshed", rep.Refreshed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Duration),
	)
	eventbus.Emit(r.bus, eventbus.ReinitFinished, rep)
	return rep, true
}
