package app

import (
	"fmt"
	"strings"
	"time"
	// Embedded zone database: the dump timezone must resolve on minimal hosts.
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"praypal/internal/alert"
	"praypal/internal/config"
	"praypal/internal/notifier"
	"praypal/internal/prayertimes"
	"praypal/internal/reminder"
	"praypal/internal/storage"
	"praypal/internal/task/engine"
	"praypal/internal/task/scheduler"
	"praypal/internal/transport/telegram/router"
	logx "praypal/pkg/logx"
)

const (
	defaultReinitSchedule = "0 0 * * *"
	defaultDumpSchedule   = "@hourly"
	defaultDumpTimezone   = "Asia/Singapore"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:   cfg.Alerts.Enabled,
			MinLevel:  cfg.Alerts.MinLevel,
			PerMinute: cfg.Alerts.RatePerMin,
		},
	}
}

// mapTaskEngineConfig fills defaults. Retries default to 0.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{
		Enabled:     true,
		Workers:     4,
		QueueSize:   512,
		HistorySize: 200,
	}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil && !*te.Enabled {
		return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false: reminders run on the engine")
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	if te.RetryMax > 0 {
		out.RetryMax = te.RetryMax
	}
	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

// The timer runtime always runs; scheduler.enabled only gates the periodic
// cron jobs.
func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: true, Timezone: cfg.Scheduler.Timezone}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{DedupWindow: 30 * time.Second}
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	out.RatePerSec = n.RatePerSec
	out.HistorySize = n.HistorySize
	var err error
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, out.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	out := storage.Config{Driver: "sqlite", Path: "./data/praypal.db"}
	sc := cfg.Storage
	if sc == nil {
		return out, nil
	}
	switch d := strings.ToLower(strings.TrimSpace(sc.Driver)); d {
	case "", "sqlite":
	case "badger":
		out.Driver = d
		out.Path = "./data/praypal.badger"
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	if p := strings.TrimSpace(sc.Path); p != "" {
		out.Path = p
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	out.BusyTimeout = busy
	return out, nil
}

func mapPrayerTimesConfig(cfg *config.Config) (prayertimes.Config, error) {
	pt := cfg.PrayerTimes
	out := prayertimes.Config{
		BaseURL:   pt.BaseURL,
		APIKey:    pt.APIKey,
		CacheSize: pt.CacheSize,
	}
	if pt.RetryAttempts > 0 {
		out.RetryAttempts = uint(pt.RetryAttempts)
	}
	var err error
	if out.Timeout, err = config.ParseDurationField("prayer_times.timeout", pt.Timeout); err != nil {
		return prayertimes.Config{}, err
	}
	if out.CacheTTL, err = config.ParseDurationField("prayer_times.cache_ttl", pt.CacheTTL); err != nil {
		return prayertimes.Config{}, err
	}
	return out, nil
}

// remindersSettings is the resolved reminders section.
type remindersSettings struct {
	Scheduler      reminder.Config
	Reinit         reminder.ReinitConfig
	ReinitSchedule string
	ReinitOnStart  bool
	DumpSchedule   string // "" disables
	DumpLocation   *time.Location
	MaxLeadTime    int
}

func mapRemindersConfig(cfg *config.Config) (remindersSettings, error) {
	r := cfg.Reminders
	out := remindersSettings{
		ReinitSchedule: defaultReinitSchedule,
		ReinitOnStart:  true,
		DumpSchedule:   defaultDumpSchedule,
		MaxLeadTime:    r.MaxLeadTime,
	}
	out.Reinit.Parallelism = r.ReinitParallelism
	if s := strings.TrimSpace(r.ReinitSchedule); s != "" {
		out.ReinitSchedule = s
	}
	if r.ReinitOnStart != nil {
		out.ReinitOnStart = *r.ReinitOnStart
	}
	switch s := strings.TrimSpace(r.DumpSchedule); {
	case strings.EqualFold(s, "off"):
		out.DumpSchedule = ""
	case s != "":
		out.DumpSchedule = s
	}
	for _, spec := range []struct{ path, raw string }{
		{"reminders.reinit_schedule", out.ReinitSchedule},
		{"reminders.dump_schedule", out.DumpSchedule},
	} {
		if spec.raw == "" {
			continue
		}
		if err := validateSchedule(spec.raw); err != nil {
			return remindersSettings{}, fmt.Errorf("%s: %w", spec.path, err)
		}
	}

	tz := strings.TrimSpace(r.DumpTimezone)
	if tz == "" {
		tz = defaultDumpTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return remindersSettings{}, fmt.Errorf("reminders.dump_timezone: invalid %q: %w", tz, err)
	}
	out.DumpLocation = loc

	if out.Reinit.Interval, err = config.ParseDurationField("reminders.reinit_interval", r.ReinitInterval); err != nil {
		return remindersSettings{}, err
	}
	if out.Scheduler.FireTimeout, err = config.ParseDurationField("reminders.fire_timeout", r.FireTimeout); err != nil {
		return remindersSettings{}, err
	}
	return out, nil
}

// cronParser matches the timer runtime's parser.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateSchedule(raw string) error {
	ps, err := scheduler.ParseSchedule(raw)
	if err != nil {
		return err
	}
	if ps.Kind == scheduler.SpecCron {
		if _, err := cronParser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}
	return nil
}

func mapRouterConfig(rs remindersSettings) router.Config {
	return router.Config{MaxLeadTime: rs.MaxLeadTime}
}

// buildAlertSink returns nil when alerts are disabled.
func buildAlertSink(cfg *config.Config, log logx.Logger) (*alert.Mailer, error) {
	a := cfg.Alerts
	if !a.Enabled {
		return nil, nil
	}
	var p alert.Provider
	switch strings.ToLower(strings.TrimSpace(a.Provider)) {
	case "", "brevo":
		if strings.TrimSpace(a.APIKey) == "" {
			return nil, fmt.Errorf("alerts.api_key (or %s_BREVO_API_KEY) required for the brevo provider", config.EnvPrefix)
		}
		timeout, err := config.ParseDurationField("alerts.timeout", a.Timeout)
		if err != nil {
			return nil, err
		}
		p = alert.NewBrevoProvider(alert.BrevoConfig{
			APIKey:   a.APIKey,
			BaseURL:  a.BaseURL,
			From:     a.From,
			FromName: a.FromName,
			Timeout:  timeout,
		}, log)
	case "mock":
		p = alert.NewMockProvider(log)
	default:
		return nil, fmt.Errorf("unknown alerts.provider: %s", a.Provider)
	}
	return alert.NewMailer(p, a.Recipients, log), nil
}
