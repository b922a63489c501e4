package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"praypal/internal/prayertimes"
)

// FireTime is one prayer occurrence as an absolute instant.
type FireTime struct {
	Prayer string
	Date   string
	At     time.Time // UTC
}

var (
	dateLayouts  = []string{"2006-01-02", "2006-1-2"}
	clockLayouts = []string{"15:04", "15:04:05", "3:04 pm", "3:04pm"}
)

// ComputeFireTimes resolves day's entries at a fixed UTC offset and keeps the
// ones strictly after now. Unparseable entries are skipped and reported in
// the returned error; the remaining fire times are still returned.
func ComputeFireTimes(day prayertimes.Day, offsetHours int, now time.Time) ([]FireTime, error) {
	zone := prayertimes.FixedZone(offsetHours)
	date, err := parseDate(day.Date, zone)
	if err != nil {
		return nil, err
	}

	var errs []error
	out := make([]FireTime, 0, len(day.Entries))
	for _, e := range day.Entries {
		h, m, sec, err := parseClock(e.Clock)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", day.Date, e.Prayer, err))
			continue
		}
		at := time.Date(date.Year(), date.Month(), date.Day(), h, m, sec, 0, zone).UTC()
		if !at.After(now) {
			continue
		}
		out = append(out, FireTime{Prayer: e.Prayer, Date: date.Format(prayertimes.DateLayout), At: at})
	}
	return out, errors.Join(errs...)
}

func parseDate(s string, zone *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseClock(s string) (hour, minute, second int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("unparseable clock %q", s)
}
