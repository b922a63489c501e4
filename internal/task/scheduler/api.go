package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"praypal/internal/task/engine"
	logx "praypal/pkg/logx"
)

// AddSchedule parses schedule and registers either a cron or interval trigger.
//
// Supported schedule formats:
//   - Cron: "0 0 * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	return s.register(name, "cron", spec, timeout, job)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.register(name, "interval", "@every "+every.String(), timeout, job)
}

func (s *Service) register(name, kind, spec string, timeout time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("parse %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so hot reloads never duplicate a trigger.
	s.removeScheduleLocked(name)
	d := scheduleDef{
		id:      fmt.Sprintf("%s:%d", kind, time.Now().UnixNano()),
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		opt:     TaskOptions{RetryMax: -1},
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Registered on Start.
		return name, nil
	}
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return name, nil
}

// SubmitOnce arms a named timer that enqueues job at the given instant.
// An existing timer with the same name is replaced. Instants in the past
// fire immediately.
func (s *Service) SubmitOnce(name string, at time.Time, timeout time.Duration, payload any, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	if job == nil {
		return errors.New("job required")
	}

	d := &onceDef{name: name, at: at, timeout: timeout, payload: payload, job: job}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if prev, ok := s.once[name]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	s.once[name] = d
	if s.armed {
		s.armLocked(d)
	}
	return nil
}

// Cancel removes a pending one-shot timer. It reports whether one existed.
func (s *Service) Cancel(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, name)
	return true
}

// ListOnce returns every pending one-shot timer ordered by fire time.
func (s *Service) ListOnce() []OnceInfo {
	s.tmu.Lock()
	out := make([]OnceInfo, 0, len(s.once))
	for _, d := range s.once {
		out = append(out, OnceInfo{Name: d.name, Next: d.at, Payload: d.payload})
	}
	s.tmu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Remove unschedules every trigger with the given name, cron or one-shot.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	if s.Cancel(name) {
		removed = true
	}
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Call with s.tmu held.
func (s *Service) armLocked(d *onceDef) {
	delay := max(time.Until(d.at), 0)
	d.timer = time.AfterFunc(delay, func() { s.fire(d) })
}

func (s *Service) fire(d *onceDef) {
	s.tmu.Lock()
	// Replaced or cancelled after the timer was armed.
	if s.once[d.name] != d {
		s.tmu.Unlock()
		return
	}
	delete(s.once, d.name)
	d.timer = nil
	s.tmu.Unlock()

	s.enqueue(d.name, d.timeout, TaskOptions{RetryMax: -1}, d.job)
}

func (s *Service) enqueue(name string, timeout time.Duration, opt TaskOptions, job Job) {
	if s.engine == nil {
		s.log.Warn("trigger fired without task engine", logx.String("name", name))
		return
	}
	err := s.engine.Enqueue(engine.Task{Name: name, Timeout: timeout, Run: job, Opt: opt})
	s.reportEnqueueError(name, err)
}

// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Call with s.mu held.
func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, opt, fn := d.name, d.timeout, d.opt, d.job
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() {
		s.enqueue(name, timeout, opt, fn)
	}))
	if err == nil {
		d.entryID = eid
	}
	return err
}

// previewNextRunsLocked lists upcoming run times for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.UTC
	}
	t := time.Now().In(loc)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}
