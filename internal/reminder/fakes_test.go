package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"praypal/internal/prayertimes"
	"praypal/internal/storage"
	"praypal/internal/task/scheduler"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snaps map[string]prayertimes.Snapshot
	err   error
	calls int
	// hook runs on every fetch before it returns, outside mu.
	hook func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) (prayertimes.Snapshot, error) {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return prayertimes.Snapshot{}, f.err
	}
	snap, ok := f.snaps[location]
	if !ok {
		return prayertimes.Snapshot{}, &prayertimes.QueryError{Location: location, Reason: "unknown location"}
	}
	return snap, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu    sync.Mutex
	prefs map[int64]storage.Preference
}

func newFakeStore() *fakeStore { return &fakeStore{prefs: map[int64]storage.Preference{}} }

func (s *fakeStore) put(id int64, location string, lead *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[id] = storage.Preference{SubscriberID: id, Location: location, LeadTime: lead, Active: true}
}

func (s *fakeStore) GetPreference(ctx context.Context, id int64) (storage.Preference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[id]
	return p, ok, nil
}

func (s *fakeStore) ListSubscriberIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.prefs))
	for id := range s.prefs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[id]
	if !ok {
		return nil
	}
	lead := storage.InactiveLeadTime
	p.Active, p.LeadTime = false, &lead
	s.prefs[id] = p
	return nil
}

type sentMessage struct {
	to   int64
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: id, text: text})
	return nil
}

type fakeJob struct {
	info scheduler.OnceInfo
	job  scheduler.Job
}

// fakeTimers holds jobs until a test fires them explicitly.
type fakeTimers struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

func newFakeTimers() *fakeTimers { return &fakeTimers{jobs: map[string]fakeJob{}} }

func (f *fakeTimers) SubmitOnce(name string, at time.Time, timeout time.Duration, payload any, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = fakeJob{info: scheduler.OnceInfo{Name: name, Next: at, Payload: payload}, job: job}
	return nil
}

func (f *fakeTimers) Cancel(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[name]
	delete(f.jobs, name)
	return ok
}

func (f *fakeTimers) ListOnce() []scheduler.OnceInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scheduler.OnceInfo, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (f *fakeTimers) names() map[string]bool {
	out := map[string]bool{}
	for _, j := range f.ListOnce() {
		out[j.Name] = true
	}
	return out
}

// fire removes the named job and runs it the way the timer runtime would.
func (f *fakeTimers) fire(ctx context.Context, name string) error {
	f.mu.Lock()
	j, ok := f.jobs[name]
	delete(f.jobs, name)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return j.job(ctx)
}
