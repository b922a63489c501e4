package prayertimes

import (
	"fmt"
	"time"
)

// Canonical prayer keys in the order the provider lists them.
const (
	Fajr    = "fajr"
	Shurooq = "shurooq"
	Dhuhr   = "dhuhr"
	Asr     = "asr"
	Maghrib = "maghrib"
	Isha    = "isha"
)

var canonicalOrder = map[string]int{Fajr: 0, Shurooq: 1, Dhuhr: 2, Asr: 3, Maghrib: 4, Isha: 5}

// Entry is one prayer's local clock time, e.g. {"fajr", "5:47 am"}.
type Entry struct {
	Prayer string
	Clock  string
}

// Day is one date's entries in canonical order.
type Day struct {
	Date    string // YYYY-MM-DD
	Entries []Entry
}

// Snapshot is one fetch's worth of a location's weekly time-table.
type Snapshot struct {
	Location    string
	OffsetHours int
	// OffsetKnown is false when the provider omitted the offset or sent
	// one that is not a whole number of hours. OffsetHours is 0 then.
	OffsetKnown bool
	Days        []Day
	FetchedAt   time.Time
}

// Zone returns the snapshot's fixed UTC offset zone.
func (s Snapshot) Zone() *time.Location { return FixedZone(s.OffsetHours) }

// Today returns the day matching now's date at the snapshot offset.
func (s Snapshot) Today(now time.Time) (Day, bool) {
	date := now.In(s.Zone()).Format(DateLayout)
	for _, d := range s.Days {
		if d.Date == date {
			return d, true
		}
	}
	return Day{}, false
}

// DateLayout is the normalized date format of Day.Date.
const DateLayout = "2006-01-02"

// FixedZone names offset zones the way users read them: "UTC", "UTC+08:00", "UTC-05:00".
func FixedZone(offsetHours int) *time.Location {
	if offsetHours == 0 {
		return time.FixedZone("UTC", 0)
	}
	return time.FixedZone(fmt.Sprintf("UTC%+03d:00", offsetHours), offsetHours*3600)
}
