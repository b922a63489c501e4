package prayertimes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// flexInt accepts 1, "1" and true.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", `""`:
		*f = 0
		return nil
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*f = flexInt(n)
	return nil
}

type apiResponse struct {
	StatusValid flexInt          `json:"status_valid"`
	StatusCode  flexInt          `json:"status_code"`
	StatusError json.RawMessage  `json:"status_error"`
	Timezone    json.RawMessage  `json:"timezone"`
	Items       []map[string]any `json:"items"`
}

type statusError struct {
	InvalidQuery string `json:"invalid_query"`
}

// decodeSnapshot turns a provider body into a Snapshot. Provider rejections
// return *QueryError.
func decodeSnapshot(location string, body []byte, now time.Time) (Snapshot, error) {
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if r.StatusValid != 1 || r.StatusCode != 1 {
		var se statusError
		// status_error is sometimes an empty list or string.
		_ = json.Unmarshal(r.StatusError, &se)
		if reason := strings.TrimSpace(se.InvalidQuery); reason != "" {
			return Snapshot{}, &QueryError{Location: location, Reason: reason}
		}
		return Snapshot{}, fmt.Errorf("%w: status_valid=%d status_code=%d", ErrInvalidResponse, r.StatusValid, r.StatusCode)
	}

	snap := Snapshot{Location: location, FetchedAt: now}
	snap.OffsetHours, snap.OffsetKnown = parseOffset(r.Timezone)

	for _, item := range r.Items {
		day, ok := decodeDay(item)
		if ok {
			snap.Days = append(snap.Days, day)
		}
	}
	if len(snap.Days) == 0 {
		return Snapshot{}, ErrNoTimes
	}
	return snap, nil
}

func decodeDay(item map[string]any) (Day, bool) {
	raw, _ := item["date_for"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Day{}, false
	}
	d := Day{Date: normalizeDate(raw)}
	for k, v := range item {
		if k == "date_for" {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		d.Entries = append(d.Entries, Entry{Prayer: strings.ToLower(k), Clock: strings.TrimSpace(s)})
	}
	sortEntries(d.Entries)
	return d, len(d.Entries) > 0
}

// sortEntries puts the six known prayers first in canonical order, then the
// rest by name.
func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		ri, iok := canonicalOrder[es[i].Prayer]
		rj, jok := canonicalOrder[es[j].Prayer]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return es[i].Prayer < es[j].Prayer
		}
	})
}

func normalizeDate(raw string) string {
	// "2006-1-2" also accepts zero-padded fields.
	if t, err := time.Parse("2006-1-2", raw); err == nil {
		return t.Format(DateLayout)
	}
	return raw
}

// parseOffset reads the timezone field as whole hours. It is sent either as a
// number or a string such as "8" or "+8".
func parseOffset(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < -14 || f > 14 {
		return 0, false
	}
	return int(f), true
}
