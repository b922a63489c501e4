package prayertimes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	logx "praypal/pkg/logx"
)

const weeklyBody = `{
  "status_valid": 1,
  "status_code": 1,
  "timezone": "8",
  "items": [
    {"date_for": "2024-3-1", "isha": "8:24 pm", "fajr": "5:47 am", "shurooq": "7:09 am",
     "dhuhr": "1:14 pm", "asr": "4:18 pm", "maghrib": "7:17 pm"},
    {"date_for": "2024-3-2", "fajr": "5:47 am", "isha": "8:24 pm"}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", RetryAttempts: 3, RetryDelay: time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(c.Close)
	return c, &hits
}

func TestFetchParsesAndCaches(t *testing.T) {
	t.Parallel()
	var path, key string
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path, key = r.URL.Path, r.URL.Query().Get("key")
		_, _ = w.Write([]byte(weeklyBody))
	})

	snap, err := c.Fetch(context.Background(), "Singapore")
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if path != "/Singapore/weekly.json" || key != "k" {
		t.Fatalf("request path=%q key=%q", path, key)
	}
	want := Snapshot{
		Location:    "Singapore",
		OffsetHours: 8,
		OffsetKnown: true,
		Days: []Day{
			{Date: "2024-03-01", Entries: []Entry{
				{Fajr, "5:47 am"}, {Shurooq, "7:09 am"}, {Dhuhr, "1:14 pm"},
				{Asr, "4:18 pm"}, {Maghrib, "7:17 pm"}, {Isha, "8:24 pm"},
			}},
			{Date: "2024-03-02", Entries: []Entry{{Fajr, "5:47 am"}, {Isha, "8:24 pm"}}},
		},
	}
	if diff := cmp.Diff(want, snap, cmpopts.IgnoreFields(Snapshot{}, "FetchedAt")); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.Fetch(context.Background(), "singapore "); err != nil {
		t.Fatalf("second Fetch() = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("provider hits = %d, want 1 (cached)", got)
	}
}

func TestFetchQueryErrorIsNotRetriedOrCached(t *testing.T) {
	t.Parallel()
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status_valid":0,"status_code":0,"status_error":{"invalid_query":"Please enter a valid location."}}`))
	})

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), "Atlantis")
		var qe *QueryError
		if !errors.As(err, &qe) {
			t.Fatalf("Fetch() = %v, want *QueryError", err)
		}
		if got := UserMessage(err); got != "Please enter a valid location." {
			t.Fatalf("UserMessage() = %q", got)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("provider hits = %d, want 2", got)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(weeklyBody))
	})

	if _, err := c.Fetch(context.Background(), "Singapore"); err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestFetchGivesUpWithGenericMessage(t *testing.T) {
	t.Parallel()
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	_, err := c.Fetch(context.Background(), "Singapore")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("Fetch() = %v, want 404 StatusError", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not be retried, hits = %d", hits.Load())
	}
	if UserMessage(err) != GenericMessage {
		t.Fatalf("UserMessage() = %q", UserMessage(err))
	}
}

func TestDecodeSnapshotEdgeCases(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		body      string
		wantErr   error
		offset    int
		known     bool
		firstKeys []string
	}{
		{
			name:    "invalid status without reason",
			body:    `{"status_valid":0,"status_code":0,"status_error":[]}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "no items",
			body:    `{"status_valid":1,"status_code":1,"items":[]}`,
			wantErr: ErrNoTimes,
		},
		{
			name:      "numeric negative offset",
			body:      `{"status_valid":"1","status_code":1,"timezone":-5,"items":[{"date_for":"2024-03-01","zawal":"12:00 pm","fajr":"6:00 am"}]}`,
			offset:    -5,
			known:     true,
			firstKeys: []string{Fajr, "zawal"},
		},
		{
			name:      "fractional offset is unknown",
			body:      `{"status_valid":1,"status_code":1,"timezone":"5.5","items":[{"date_for":"2024-3-1","fajr":"5:00 am"}]}`,
			firstKeys: []string{Fajr},
		},
		{
			name:      "missing offset",
			body:      `{"status_valid":1,"status_code":1,"items":[{"date_for":"2024-3-1","fajr":"5:00 am"}]}`,
			firstKeys: []string{Fajr},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			snap, err := decodeSnapshot("X", []byte(tc.body), now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSnapshot() = %v", err)
			}
			if snap.OffsetHours != tc.offset || snap.OffsetKnown != tc.known {
				t.Fatalf("offset = %d/%v, want %d/%v", snap.OffsetHours, snap.OffsetKnown, tc.offset, tc.known)
			}
			var keys []string
			for _, e := range snap.Days[0].Entries {
				keys = append(keys, e.Prayer)
			}
			if diff := cmp.Diff(tc.firstKeys, keys); diff != "" {
				t.Fatalf("entry order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnapshotTodayUsesOffsetDate(t *testing.T) {
	t.Parallel()
	snap := Snapshot{OffsetHours: 8, OffsetKnown: true, Days: []Day{{Date: "2024-03-01"}, {Date: "2024-03-02"}}}
	// 17:00 UTC on the 1st is already the 2nd at UTC+8.
	day, ok := snap.Today(time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC))
	if !ok || day.Date != "2024-03-02" {
		t.Fatalf("Today() = %+v, %v", day, ok)
	}
	if got := FixedZone(8).String(); got != "UTC+08:00" {
		t.Fatalf("FixedZone(8) = %q", got)
	}
	if got := FixedZone(0).String(); got != "UTC" {
		t.Fatalf("FixedZone(0) = %q", got)
	}
}
