package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "72h").
// Secrets may be left empty in the file and supplied through the
// environment instead (see ApplyEnv).
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Scheduler controls the trigger side of the timer runtime.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of fired reminders and cron jobs.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	PrayerTimes PrayerTimesConfig `json:"prayer_times"`
	Reminders   RemindersConfig   `json:"reminders"`
	Alerts      AlertsConfig      `json:"alerts"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-polling timeout (default "10s").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	// Enabled gates the periodic cron jobs (reinit, job dump). Reminder
	// timers always run. Default true.
	Enabled *bool `json:"enabled,omitempty"`
	// Timezone for cron triggers (default "UTC").
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls the worker pool.
//
// Enabled is a pointer so an omitted value follows scheduler.enabled.
//
// Defaults: workers 4, queue_size 512, history_size 200, retry_max 0.
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls outbound message delivery.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
	HistorySize int    `json:"history_size"`
	// DedupWindow suppresses an identical text to the same chat within the
	// window ("0s" disables, default "30s").
	DedupWindow string `json:"dedup_window,omitempty"`
}

// StorageConfig selects the preference store.
//
//	"storage": { "driver": "sqlite", "path": "./data/praypal.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // sqlite (default) | badger
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PrayerTimesConfig configures the muslimsalat.com client.
type PrayerTimesConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	CacheTTL      string `json:"cache_ttl,omitempty"`
	CacheSize     int    `json:"cache_size,omitempty"`
	RetryAttempts int    `json:"retry_attempts,omitempty"`
}

// RemindersConfig tunes scheduling and periodic refresh.
type RemindersConfig struct {
	ReinitSchedule    string `json:"reinit_schedule,omitempty"` // default "0 0 * * *"
	ReinitInterval    string `json:"reinit_interval,omitempty"` // default "3d"
	ReinitParallelism int    `json:"reinit_parallelism,omitempty"`
	ReinitOnStart     *bool  `json:"reinit_on_start,omitempty"`
	DumpSchedule      string `json:"dump_schedule,omitempty"` // default "@hourly"; "off" disables
	DumpTimezone      string `json:"dump_timezone,omitempty"` // default "Asia/Singapore"
	FireTimeout       string `json:"fire_timeout,omitempty"`
	MaxLeadTime       int    `json:"max_lead_time,omitempty"` // minutes, default 60
}

// AlertsConfig routes error-level log records to operator email.
type AlertsConfig struct {
	Enabled    bool     `json:"enabled"`
	Provider   string   `json:"provider,omitempty"` // brevo | mock
	APIKey     string   `json:"api_key,omitempty"`
	BaseURL    string   `json:"base_url,omitempty"`
	From       string   `json:"from,omitempty"`
	FromName   string   `json:"from_name,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	MinLevel   string   `json:"min_level,omitempty"`
	RatePerMin int      `json:"rate_per_min,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
}
