package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"praypal/internal/eventbus"
	"praypal/internal/task/engine"
	logx "praypal/pkg/logx"
)

// Config controls the trigger side of the runtime.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ for cron specs, e.g. "UTC"
}

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

// Job is the body run by the engine when a trigger fires.
type Job func(ctx context.Context) error

type scheduleDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	opt     TaskOptions
}

// onceDef outlives its timer: Stop disarms timers, Start re-arms them.
type onceDef struct {
	name    string
	at      time.Time
	timeout time.Duration
	payload any
	job     Job
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu     sync.Mutex
	armed   bool
	once    map[string]*onceDef
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

// OnceInfo describes a live one-shot timer.
type OnceInfo struct {
	Name    string
	Next    time.Time
	Payload any
}

type Snapshot struct {
	Enabled  bool
	Timezone string

	Workers  int
	InFlight int
	QueueLen int
	QueueCap int
	Dropped  uint64

	Once      int
	Schedules []ScheduleInfo
	History   []HistoryItem
}
