package router

import (
	"context"
	"time"

	"praypal/internal/prayertimes"
	"praypal/internal/reminder"
	"praypal/internal/storage"
	kit "praypal/internal/transport"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Request is one incoming message, command or free text.
type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string // without the slash; empty for free text
	Text    string
	ReqID   string
	Logger  logx.Logger
}

// Preferences is the subset of storage.Store the conversation needs.
type Preferences interface {
	GetPreference(ctx context.Context, id int64) (storage.Preference, bool, error)
	PutPreference(ctx context.Context, id int64, location string, leadTime *int) error
}

type Fetcher interface {
	Fetch(ctx context.Context, location string) (prayertimes.Snapshot, error)
}

type Reminders interface {
	Schedule(ctx context.Context, id int64, location string, leadTime *int) (reminder.Result, error)
	Upcoming(id int64) (reminder.Upcoming, bool)
}

type Config struct {
	// Workers is the number of chat shards. 0 means 4.
	Workers int
	// QueueSize is the per-shard backlog. 0 means 64.
	QueueSize int
	// HandlerTimeout bounds one message. 0 means 30s.
	HandlerTimeout time.Duration
	// MaxLeadTime is the largest accepted lead time in minutes. 0 means 60.
	MaxLeadTime int
}

type Deps struct {
	Adapter   kit.Adapter
	Store     Preferences
	Fetcher   Fetcher
	Reminders Reminders
	Clock     clock.Clock
}
