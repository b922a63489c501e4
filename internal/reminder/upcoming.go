package reminder

import (
	"fmt"
	"strings"
	"time"

	"praypal/internal/prayertimes"
	logx "praypal/pkg/logx"
)

const upcomingLayout = "15:04:05 MST (Mon)"

// Upcoming describes a subscriber's next exact-time reminder.
type Upcoming struct {
	Prayer        string
	At            time.Time
	ScheduledTime string
	TimeRemaining string
}

// Upcoming returns the subscriber's earliest live exact job. ok is false when
// there is none.
func (s *Scheduler) Upcoming(id int64) (Upcoming, bool) {
	var (
		name  string
		at    time.Time
		found bool
	)
	for _, j := range s.timers.ListOnce() {
		if !IsExactName(j.Name, id) {
			continue
		}
		if !found || j.Next.Before(at) {
			name, at, found = j.Name, j.Next, true
		}
	}
	if !found {
		return Upcoming{}, false
	}

	prayer, zone := "unknown", time.UTC
	ident, err := DecodeIdentity(name)
	switch {
	case err != nil:
		s.log.Warn("undecodable job identity", logx.Subscriber(id), logx.String("job", name), logx.Err(err))
	default:
		prayer = ident.Prayer
		if ident.OffsetKnown {
			zone = prayertimes.FixedZone(ident.OffsetHours)
		}
	}

	return Upcoming{
		Prayer:        prayer,
		At:            at,
		ScheduledTime: at.In(zone).Format(upcomingLayout),
		TimeRemaining: FormatRemaining(at.Sub(s.clock.Now())),
	}, true
}

// FormatRemaining renders d as "in 1 day and 2 hours and 5 minutes.".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Prayer time has already passed."
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	var parts []string
	for _, p := range []struct {
		n    int
		unit string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}} {
		switch {
		case p.n == 1:
			parts = append(parts, "1 "+p.unit)
		case p.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	if len(parts) == 0 {
		return "Prayer time is about to start."
	}
	return "in " + strings.Join(parts, " and ") + "."
}
