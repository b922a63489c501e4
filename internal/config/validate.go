package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every structural problem in cfg at once.
// Missing secrets are checked by the components that need them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	check("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if te := cfg.TaskEngine; te != nil {
		check("task_engine.default_timeout", te.DefaultTimeout)
		check("task_engine.max_queue_delay", te.MaxQueueDelay)
		if te.Workers < 0 || te.QueueSize < 0 {
			errs = append(errs, errors.New("task_engine: workers and queue_size must be >= 0"))
		}
	}
	if n := cfg.Notifier; n != nil {
		check("notifier.send_timeout", n.SendTimeout)
		check("notifier.dedup_window", n.DedupWindow)
		if n.RatePerSec < 0 {
			errs = append(errs, errors.New("notifier.rate_per_sec must be >= 0"))
		}
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "sqlite", "badger":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unsupported %q (want sqlite or badger)", st.Driver))
		}
		check("storage.busy_timeout", st.BusyTimeout)
	}

	pt := cfg.PrayerTimes
	check("prayer_times.timeout", pt.Timeout)
	check("prayer_times.cache_ttl", pt.CacheTTL)
	if pt.CacheSize < 0 || pt.RetryAttempts < 0 {
		errs = append(errs, errors.New("prayer_times: cache_size and retry_attempts must be >= 0"))
	}

	r := cfg.Reminders
	check("reminders.reinit_interval", r.ReinitInterval)
	check("reminders.fire_timeout", r.FireTimeout)
	if r.MaxLeadTime < 0 {
		errs = append(errs, errors.New("reminders.max_lead_time must be >= 0"))
	}
	if r.ReinitParallelism < 0 {
		errs = append(errs, errors.New("reminders.reinit_parallelism must be >= 0"))
	}

	a := cfg.Alerts
	check("alerts.timeout", a.Timeout)
	switch strings.ToLower(strings.TrimSpace(a.Provider)) {
	case "", "brevo", "mock":
	default:
		errs = append(errs, fmt.Errorf("alerts.provider: unsupported %q (want brevo or mock)", a.Provider))
	}
	if a.Enabled && len(a.Recipients) == 0 {
		errs = append(errs, errors.New("alerts.recipients required when alerts are enabled"))
	}
	return errors.Join(errs...)
}
