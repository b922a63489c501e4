package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"praypal/internal/task/engine"
	logx "praypal/pkg/logx"
)

func newRuntime(t *testing.T) *Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 2}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s
}

func TestSubmitOnceFiresAndDisappears(t *testing.T) {
	t.Parallel()
	s := newRuntime(t)

	done := make(chan struct{})
	err := s.SubmitOnce("42_fajr", time.Now().Add(20*time.Millisecond), time.Second, "payload", func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("SubmitOnce() = %v", err)
	}
	if got := s.ListOnce(); len(got) != 1 || got[0].Payload != "payload" {
		t.Fatalf("ListOnce() = %+v", got)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}
	if got := s.ListOnce(); len(got) != 0 {
		t.Fatalf("fired job still listed: %+v", got)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	t.Parallel()
	s := newRuntime(t)

	var fired atomic.Bool
	_ = s.SubmitOnce("7_isha", time.Now().Add(50*time.Millisecond), 0, nil, func(ctx context.Context) error {
		fired.Store(true)
		return nil
	})
	if !s.Cancel("7_isha") {
		t.Fatal("Cancel() = false, want true")
	}
	if s.Cancel("7_isha") {
		t.Fatal("second Cancel() should report nothing removed")
	}
	time.Sleep(150 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled job fired")
	}
}

func TestListOnceOrdersByFireTime(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	base := time.Now().Add(time.Hour)
	noop := func(context.Context) error { return nil }
	_ = s.SubmitOnce("c", base.Add(2*time.Minute), 0, nil, noop)
	_ = s.SubmitOnce("a", base, 0, nil, noop)
	_ = s.SubmitOnce("b", base.Add(time.Minute), 0, nil, noop)
	// Upsert keeps one entry per name.
	_ = s.SubmitOnce("a", base.Add(-time.Minute), 0, nil, noop)

	got := s.ListOnce()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"a", "b", "c"}
	for i, it := range got {
		if it.Name != want[i] {
			t.Fatalf("order = %v at %d, want %v", it.Name, i, want)
		}
	}
}

func TestStopKeepsPendingDefinitions(t *testing.T) {
	t.Parallel()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	defer eng.Stop(context.Background())
	s := New(Config{Enabled: true}, eng, logx.Nop(), nil)
	s.Start(context.Background())

	var fired atomic.Int32
	_ = s.SubmitOnce("later", time.Now().Add(100*time.Millisecond), 0, nil, func(context.Context) error {
		fired.Add(1)
		return nil
	})
	s.Stop(context.Background())
	if len(s.ListOnce()) != 1 {
		t.Fatal("pending definition lost on Stop")
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
}

func TestAddCronRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	if _, err := s.AddCron("bad", "not a cron", time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.AddSchedule("reinit", "0 0 * * *", time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddSchedule() = %v", err)
	}
	if snap := s.Snapshot(); len(snap.Schedules) != 1 || snap.Schedules[0].Name != "reinit" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
}
