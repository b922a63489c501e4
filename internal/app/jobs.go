package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"praypal/internal/config"
	"praypal/internal/task/scheduler"
	logx "praypal/pkg/logx"
)

const (
	jobReinit = "reminders.reinit"
	jobDump   = "reminders.dump"

	reinitTimeout = 30 * time.Minute
	dumpTimeout   = 10 * time.Second
)

func periodicEnabled(cfg *config.Config) bool {
	return cfg == nil || cfg.Scheduler.Enabled == nil || *cfg.Scheduler.Enabled
}

// syncPeriodicJobs registers, replaces or removes the cron jobs. Safe to call
// on every reload; AddSchedule upserts by name.
func (a *App) syncPeriodicJobs(cfg *config.Config, rs remindersSettings) {
	if !periodicEnabled(cfg) {
		a.sched.Remove(jobReinit)
		a.sched.Remove(jobDump)
		a.log.Info("periodic jobs disabled")
		return
	}
	if _, err := a.sched.AddSchedule(jobReinit, rs.ReinitSchedule, reinitTimeout, a.runReinit); err != nil {
		a.log.Error("register reinit job failed", logx.String("spec", rs.ReinitSchedule), logx.Err(err))
	}
	if rs.DumpSchedule == "" {
		a.sched.Remove(jobDump)
		return
	}
	loc := rs.DumpLocation
	if _, err := a.sched.AddSchedule(jobDump, rs.DumpSchedule, dumpTimeout, func(context.Context) error {
		a.dumpJobs(loc)
		return nil
	}); err != nil {
		a.log.Error("register dump job failed", logx.String("spec", rs.DumpSchedule), logx.Err(err))
	}
}

func (a *App) runReinit(ctx context.Context) error {
	// The reinitializer logs its own report.
	if _, ran := a.reinit.ReinitializeAll(ctx); !ran {
		a.log.Debug("reinit throttled", logx.Time("last_run", a.reinit.LastRun()))
	}
	return nil
}

func (a *App) dumpJobs(loc *time.Location) {
	jobs := a.reminders.Jobs()
	a.log.Info("active reminder jobs",
		logx.Int("count", len(jobs)),
		logx.String("jobs", strings.Join(formatJobDump(jobs, loc), "; ")),
	)
}

// formatJobDump renders one "name next=..." entry per job in loc.
func formatJobDump(jobs []scheduler.OnceInfo, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, fmt.Sprintf("%s next=%s", j.Name, j.Next.In(loc).Format("2006-01-02 15:04:05 MST")))
	}
	return out
}
