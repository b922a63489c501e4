package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"praypal/internal/eventbus"
	"praypal/internal/prayertimes"
	"praypal/internal/storage"
	"praypal/internal/task/engine"
	"praypal/internal/task/scheduler"
	"praypal/internal/transport"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

// Fetcher returns a location's weekly time-table.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (prayertimes.Snapshot, error)
}

// PreferenceStore is the subset of storage.Store the scheduler needs.
type PreferenceStore interface {
	GetPreference(ctx context.Context, id int64) (storage.Preference, bool, error)
	ListSubscriberIDs(ctx context.Context) ([]int64, error)
	Deactivate(ctx context.Context, id int64) error
}

// Sender delivers a text to a subscriber. Permanent failures wrap
// transport.ErrRecipientUnreachable.
type Sender interface {
	Send(ctx context.Context, subscriberID int64, text string) error
}

// Timers is the one-shot side of the timer runtime.
type Timers interface {
	SubmitOnce(name string, at time.Time, timeout time.Duration, payload any, job scheduler.Job) error
	Cancel(name string) bool
	ListOnce() []scheduler.OnceInfo
}

type Config struct {
	// FireTimeout bounds one delivery attempt. 0 means 30s.
	FireTimeout time.Duration
}

// Deps are the collaborators of a Scheduler. Clock defaults to the wall clock.
type Deps struct {
	Fetcher Fetcher
	Store   PreferenceStore
	Sender  Sender
	Timers  Timers
	Clock   clock.Clock
}

// Result reports what one Schedule call did.
type Result struct {
	Cancelled int
	Exact     int
	Lead      int
}

// ScheduledEvent is published on eventbus.ReminderScheduled.
type ScheduledEvent struct {
	SubscriberID int64
	Location     string
	Result       Result
}

// DeliveryEvent is published on eventbus.ReminderDelivered and ReminderFailed.
type DeliveryEvent struct {
	SubscriberID int64
	Prayer       string
	Kind         Kind
	Error        string
}

// Scheduler owns every subscriber's reminder jobs.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	store   PreferenceStore
	sender  Sender
	timers  Timers
	clock   clock.Clock
	log     logx.Logger
	bus     eventbus.Bus
	locks   *keyedMutex
}

func NewScheduler(cfg Config, deps Deps, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 30 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:     cfg,
		fetcher: deps.Fetcher,
		store:   deps.Store,
		sender:  deps.Sender,
		timers:  deps.Timers,
		clock:   deps.Clock,
		log:     log.With(logx.String("comp", "reminder")),
		bus:     bus,
		locks:   newKeyedMutex(),
	}
}

// Schedule replaces every job of subscriber id with reminders for the future
// prayer times of location. A lead time of -1 or a stored inactive preference
// makes it a no-op. On fetch failure existing jobs are left untouched and the
// error is returned; prayertimes.UserMessage renders it for the user.
func (s *Scheduler) Schedule(ctx context.Context, id int64, location string, leadTime *int) (Result, error) {
	log := s.log.With(logx.Subscriber(id))

	if leadTime != nil && *leadTime == storage.InactiveLeadTime {
		log.Info("subscriber inactive, not scheduling")
		return Result{}, nil
	}
	if inactive, err := s.inactive(ctx, id); err != nil || inactive {
		if inactive {
			log.Info("subscriber inactive, not scheduling")
		}
		return Result{}, err
	}

	snap, err := s.fetcher.Fetch(ctx, location)
	if err != nil {
		return Result{}, err
	}
	if !snap.OffsetKnown {
		log.Warn("timetable has no usable utc offset, assuming UTC", logx.String("location", location))
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	// A delivery may have deactivated the subscriber while we were fetching.
	if inactive, err := s.inactive(ctx, id); err != nil || inactive {
		if inactive {
			log.Info("subscriber deactivated during refresh, not scheduling")
		}
		return Result{}, err
	}

	res := Result{Cancelled: s.cancelAll(id)}
	now := s.clock.Now()
	for _, day := range snap.Days {
		fires, err := ComputeFireTimes(day, snap.OffsetHours, now)
		if err != nil {
			log.Warn("skipped unparseable prayer times", logx.String("location", location), logx.Err(err))
		}
		for _, f := range fires {
			base := Identity{
				SubscriberID: id,
				Prayer:       f.Prayer,
				Date:         f.Date,
				OffsetHours:  snap.OffsetHours,
				OffsetKnown:  snap.OffsetKnown,
			}
			if s.submit(log, base, KindExact, nil, f.At) {
				res.Exact++
			}
			if leadTime == nil || *leadTime <= 0 {
				continue
			}
			at := f.At.Add(-time.Duration(*leadTime) * time.Minute)
			if at.Before(now) {
				continue
			}
			if s.submit(log, base, KindLead, leadTime, at) {
				res.Lead++
			}
		}
	}

	log.Info("reminders scheduled",
		logx.String("location", location),
		logx.Int("cancelled", res.Cancelled),
		logx.Int("exact", res.Exact),
		logx.Int("lead", res.Lead),
	)
	eventbus.Emit(s.bus, eventbus.ReminderScheduled, ScheduledEvent{SubscriberID: id, Location: location, Result: res})
	return res, nil
}

func (s *Scheduler) inactive(ctx context.Context, id int64) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	pref, ok, err := s.store.GetPreference(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load preference %d: %w", id, err)
	}
	return ok && pref.Inactive(), nil
}

func (s *Scheduler) submit(log logx.Logger, base Identity, kind Kind, leadTime *int, at time.Time) bool {
	ident := base
	ident.Kind = kind
	ident.Token = NewToken()
	if leadTime != nil {
		lt := *leadTime
		ident.LeadTime = &lt
	}
	name := ident.Encode()
	if err := s.timers.SubmitOnce(name, at, s.cfg.FireTimeout, ident, s.fireJob(ident)); err != nil {
		log.Error("submit reminder failed", logx.String("job", name), logx.Err(err))
		return false
	}
	return true
}

// Cancel drops every pending job of subscriber id and returns how many there were.
func (s *Scheduler) Cancel(id int64) int {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.cancelAll(id)
}

// Call with the subscriber's lock held.
func (s *Scheduler) cancelAll(id int64) int {
	prefix := SubscriberPrefix(id)
	n := 0
	for _, j := range s.timers.ListOnce() {
		if strings.HasPrefix(j.Name, prefix) && s.timers.Cancel(j.Name) {
			n++
		}
	}
	return n
}

func (s *Scheduler) fireJob(ident Identity) scheduler.Job {
	return func(ctx context.Context) error {
		return s.deliver(ctx, ident)
	}
}

// deliver runs on an engine worker. It never takes the subscriber lock while
// sending. Every failure is final for this occurrence.
func (s *Scheduler) deliver(ctx context.Context, ident Identity) error {
	id := ident.SubscriberID
	ev := DeliveryEvent{SubscriberID: id, Prayer: ident.Prayer, Kind: ident.Kind}

	err := s.sender.Send(ctx, id, Message(ident.Prayer, ident.Kind, ident.LeadTime))
	if err == nil {
		s.log.Debug("reminder delivered", logx.Subscriber(id), logx.String("prayer", ident.Prayer), logx.String("kind", string(ident.Kind)))
		eventbus.Emit(s.bus, eventbus.ReminderDelivered, ev)
		return nil
	}

	ev.Error = err.Error()
	eventbus.Emit(s.bus, eventbus.ReminderFailed, ev)

	if !errors.Is(err, transport.ErrRecipientUnreachable) {
		s.log.Warn("reminder delivery failed", logx.Subscriber(id), logx.String("prayer", ident.Prayer), logx.Err(err))
		return engine.NoRetry(err)
	}

	s.log.Info("subscriber unreachable, deactivating", logx.Subscriber(id), logx.Err(err))
	if s.store != nil {
		if derr := s.store.Deactivate(context.WithoutCancel(ctx), id); derr != nil {
			s.log.Error("deactivate subscriber failed", logx.Subscriber(id), logx.Err(derr))
		}
	}
	cancelled := s.Cancel(id)
	eventbus.Emit(s.bus, eventbus.SubscriberDeactivated, ScheduledEvent{SubscriberID: id, Result: Result{Cancelled: cancelled}})
	return engine.NoRetry(err)
}

// Jobs lists every live reminder job ordered by fire time.
func (s *Scheduler) Jobs() []scheduler.OnceInfo {
	all := s.timers.ListOnce()
	out := all[:0]
	for _, j := range all {
		if _, ok := j.Payload.(Identity); ok {
			out = append(out, j)
		}
	}
	return out
}
