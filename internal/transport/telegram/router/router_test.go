package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"praypal/internal/prayertimes"
	"praypal/internal/reminder"
	"praypal/internal/storage"
	kit "praypal/internal/transport"
	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	opts []*kit.SendOptions
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }
func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type memPrefs struct {
	mu sync.Mutex
	m  map[int64]storage.Preference
}

func (p *memPrefs) GetPreference(ctx context.Context, id int64) (storage.Preference, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[id]
	return v, ok, nil
}

func (p *memPrefs) PutPreference(ctx context.Context, id int64, location string, lead *int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[id] = storage.Preference{SubscriberID: id, Location: location, LeadTime: lead, Active: true}
	return nil
}

type stubFetcher struct {
	snap prayertimes.Snapshot
	err  error
}

func (s *stubFetcher) Fetch(ctx context.Context, location string) (prayertimes.Snapshot, error) {
	if s.err != nil {
		return prayertimes.Snapshot{}, s.err
	}
	snap := s.snap
	snap.Location = location
	return snap, nil
}

type scheduleCall struct {
	ID       int64
	Location string
	Lead     *int
}

type stubReminders struct {
	calls    []scheduleCall
	upcoming *reminder.Upcoming
}

func (s *stubReminders) Schedule(ctx context.Context, id int64, location string, lead *int) (reminder.Result, error) {
	s.calls = append(s.calls, scheduleCall{id, location, lead})
	return reminder.Result{Exact: 1}, nil
}

func (s *stubReminders) Upcoming(id int64) (reminder.Upcoming, bool) {
	if s.upcoming == nil {
		return reminder.Upcoming{}, false
	}
	return *s.upcoming, true
}

type fixture struct {
	r       *Router
	adapter *fakeAdapter
	prefs   *memPrefs
	fetcher *stubFetcher
	rem     *stubReminders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		adapter: &fakeAdapter{},
		prefs:   &memPrefs{m: map[int64]storage.Preference{}},
		fetcher: &stubFetcher{snap: prayertimes.Snapshot{
			OffsetHours: 8,
			OffsetKnown: true,
			Days: []prayertimes.Day{{Date: "2024-03-01", Entries: []prayertimes.Entry{
				{Prayer: "fajr", Clock: "5:47 am"},
				{Prayer: "shurooq", Clock: "7:09 am"},
			}}},
		}},
		rem: &stubReminders{},
	}
	f.r = New(Config{MaxLeadTime: 60}, Deps{
		Adapter:   f.adapter,
		Store:     f.prefs,
		Fetcher:   f.fetcher,
		Reminders: f.rem,
		Clock:     clock.NewMockClock(time.Date(2024, 2, 29, 20, 0, 0, 0, time.UTC)),
	}, logx.Nop())
	return f
}

func (f *fixture) say(text string) string {
	f.r.HandleMessage(context.Background(), &kit.Message{ChatID: 42, FromID: 42, Text: text})
	return f.adapter.last()
}

func intp(n int) *int { return &n }

func TestSetupConversation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.say("/start"); got != welcomeText {
		t.Fatalf("/start reply = %q", got)
	}
	if got := f.say("  singapore "); got != locationSetText {
		t.Fatalf("location reply = %q", got)
	}
	if got := f.say("ten"); got != leadInvalidText {
		t.Fatalf("invalid lead reply = %q", got)
	}
	if got := f.say("90"); got != "Lead time must be at most 60 minutes. Please send a smaller number or send 'skip'." {
		t.Fatalf("long lead reply = %q", got)
	}
	if got := f.say("10"); got != "Lead time set to 10 minutes." {
		t.Fatalf("lead reply = %q", got)
	}

	want := []scheduleCall{{42, "Singapore", nil}, {42, "Singapore", intp(10)}}
	if diff := cmp.Diff(want, f.rem.calls); diff != "" {
		t.Fatalf("schedule calls (-want +got):\n%s", diff)
	}
	pref, _, _ := f.prefs.GetPreference(context.Background(), 42)
	if pref.Location != "Singapore" || pref.LeadTime == nil || *pref.LeadTime != 10 {
		t.Fatalf("stored preference = %+v", pref)
	}

	// The flow is over; free text is ignored.
	n := len(f.adapter.sent)
	f.say("hello")
	if len(f.adapter.sent) != n {
		t.Fatal("free text outside setup got a reply")
	}
}

func TestSetupSkipLeadTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.say("/start")
	f.say("Jakarta")
	if got := f.say("SKIP"); got != leadSkippedText {
		t.Fatalf("skip reply = %q", got)
	}
	if last := f.rem.calls[len(f.rem.calls)-1]; last.Lead != nil {
		t.Fatalf("skip scheduled with lead %v", *last.Lead)
	}
}

func TestLocationRejectedKeepsAsking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.err = &prayertimes.QueryError{Location: "Atlantis", Reason: "Invalid location."}

	f.say("/start")
	if got := f.say("atlantis"); got != "Invalid location." {
		t.Fatalf("reply = %q", got)
	}
	if _, found, _ := f.prefs.GetPreference(context.Background(), 42); found {
		t.Fatal("rejected location was stored")
	}

	f.fetcher.err = nil
	if got := f.say("Singapore"); got != locationSetText {
		t.Fatalf("retry reply = %q", got)
	}
}

func TestShowSettings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pref *storage.Preference
		want string
	}{
		{name: "nothing stored", want: noSettingsText},
		{name: "no location", pref: &storage.Preference{Active: true}, want: noLocationText},
		{
			name: "with lead",
			pref: &storage.Preference{Location: "Singapore", LeadTime: intp(15), Active: true},
			want: "Your current settings:\n\n* Location: Singapore\n* Lead time: 15 minutes\n",
		},
		{
			name: "without lead",
			pref: &storage.Preference{Location: "Singapore", Active: true},
			want: "Your current settings:\n\n* Location: Singapore\n* Lead time: Not set (reminders at exact prayer time)\n",
		},
		{
			name: "deactivated",
			pref: &storage.Preference{Location: "Singapore", LeadTime: intp(-1)},
			want: "Your current settings:\n\n* Location: Singapore\n* Lead time: Not set (reminders at exact prayer time)\n* Reminders: Paused (send /start to resume)\n",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tc.pref != nil {
				f.prefs.m[42] = *tc.pref
			}
			if got := f.say("/showsettings"); got != tc.want {
				t.Fatalf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTodayPrayerTimes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.prefs.m[42] = storage.Preference{Location: "Kuala_Lumpur", Active: true}

	// 20:00 UTC on Feb 29 is already Mar 1 at UTC+8.
	want := "Today's prayer times for *Kuala\\_Lumpur*:\n\n*Fajr*: 5:47 am\n*Shurooq*: 7:09 am\n"
	if got := f.say("/todayprayertimes"); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if opt := f.adapter.opts[len(f.adapter.opts)-1]; opt == nil || opt.ParseMode != "Markdown" {
		t.Fatalf("send options = %+v", opt)
	}

	f.fetcher.snap.Days[0].Date = "2024-03-05"
	if got := f.say("/todayprayertimes"); got != "Could not retrieve prayer times for today (2024-03-01). Please try again later." {
		t.Fatalf("missing day reply = %q", got)
	}
}

func TestNextSalat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if got := f.say("/nextsalat"); got != noUpcomingText {
		t.Fatalf("reply = %q", got)
	}

	f.rem.upcoming = &reminder.Upcoming{Prayer: "fajr", ScheduledTime: "05:47:00 UTC+08:00 (Fri)", TimeRemaining: "in 1 hour."}
	want := "Your upcoming prayer reminder:\n\n* Prayer Name: Fajr\n* Scheduled Time: 05:47:00 UTC+08:00 (Fri)\n* Time Remaining: in 1 hour.\n"
	if got := f.say("/nextsalat@PrayPalBot"); got != want {
		t.Fatalf("reply = %q", got)
	}

	f.rem.upcoming.Prayer = "shurooq"
	want = "Your upcoming reminder:\n\n* Name: Shurooq\n* Scheduled Time: 05:47:00 UTC+08:00 (Fri)\n* Time Remaining: in 1 hour.\n"
	if got := f.say("/nextsalat"); got != want {
		t.Fatalf("reply = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if got := f.say("/frobnicate"); got != unknownCommandText {
		t.Fatalf("reply = %q", got)
	}
}

func TestMenuListsCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var names []string
	for _, c := range f.r.Menu() {
		names = append(names, c.Command)
	}
	want := []string{"start", "showsettings", "todayprayertimes", "nextsalat", "help"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("menu (-want +got):\n%s", diff)
	}
}
