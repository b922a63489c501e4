package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// InactiveLeadTime is the lead-time sentinel written on deactivation.
// Rows carrying it are treated as inactive even without the active flag.
const InactiveLeadTime = -1

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "badger": BadgerDB directory
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Preference is one subscriber's stored settings.
type Preference struct {
	SubscriberID int64
	Location     string // "" when never set
	LeadTime     *int   // nil when skipped
	Active       bool
	UpdatedAt    time.Time
}

// Inactive reports whether reminders must not be scheduled for p.
func (p Preference) Inactive() bool {
	return !p.Active || (p.LeadTime != nil && *p.LeadTime == InactiveLeadTime)
}

// Store is the preference persistence API.
type Store interface {
	// GetPreference returns ok=false when the subscriber has no record.
	GetPreference(ctx context.Context, id int64) (p Preference, ok bool, err error)
	// PutPreference replaces the subscriber's record and marks it active.
	PutPreference(ctx context.Context, id int64, location string, leadTime *int) error
	// ListSubscriberIDs returns every known subscriber in ascending order.
	ListSubscriberIDs(ctx context.Context) ([]int64, error)
	// Deactivate marks the subscriber inactive until the next PutPreference.
	Deactivate(ctx context.Context, id int64) error
	Close() error
}
