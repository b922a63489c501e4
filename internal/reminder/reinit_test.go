package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"praypal/pkg/clock"
	logx "praypal/pkg/logx"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls map[int64]int
}

func (c *countingRefresher) Schedule(ctx context.Context, id int64, location string, leadTime *int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	return Result{}, nil
}

func (c *countingRefresher) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func TestReinitializeAllThrottles(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.put(1, "Singapore", nil)
	store.put(2, "Jakarta", intp(10))
	store.put(3, "", nil)

	ref := &countingRefresher{calls: map[int64]int{}}
	clk := clock.NewMockClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	r := NewReinitializer(ReinitConfig{}, store, ref, clk, logx.Nop(), nil)
	ctx := context.Background()

	rep, ran := r.ReinitializeAll(ctx)
	if !ran || rep.Refreshed != 2 || rep.Skipped != 1 || rep.Subscribers != 3 {
		t.Fatalf("first run = %+v, %v", rep, ran)
	}

	clk.Add(71 * time.Hour)
	if _, ran := r.ReinitializeAll(ctx); ran {
		t.Fatal("second run within 3 days proceeded")
	}
	if got := ref.total(); got != 2 {
		t.Fatalf("refreshes = %d, want 2", got)
	}

	clk.Add(time.Hour)
	if _, ran := r.ReinitializeAll(ctx); !ran {
		t.Fatal("run after 3 days was throttled")
	}
	if got := ref.total(); got != 4 {
		t.Fatalf("refreshes = %d, want 4", got)
	}
}

func TestReinitializeAllConcurrentTriggersRunOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.put(1, "Singapore", nil)
	ref := &countingRefresher{calls: map[int64]int{}}
	r := NewReinitializer(ReinitConfig{}, store, ref, clock.NewMockClock(time.Now()), logx.Nop(), nil)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.ReinitializeAll(context.Background()); ok {
				ran.Add(1)
			}
		}()
	}
	wg.Wait()
	if ran.Load() != 1 || ref.total() != 1 {
		t.Fatalf("runs = %d refreshes = %d, want 1/1", ran.Load(), ref.total())
	}
}

func TestKeyedMutexSerializesPerID(t *testing.T) {
	t.Parallel()
	k := newKeyedMutex()

	unlock := k.Lock(1)
	acquired := make(chan struct{})
	go func() {
		u := k.Lock(1)
		close(acquired)
		u()
	}()

	// A different id is independent.
	k.Lock(2)()

	select {
	case <-acquired:
		t.Fatal("second holder acquired id 1 while it was locked")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	deadline := time.Now().Add(time.Second)
	for k.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("lock entries leaked: %d", k.size())
		}
		time.Sleep(time.Millisecond)
	}
}
