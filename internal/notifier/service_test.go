package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kit "praypal/internal/transport"
	logx "praypal/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, fmt.Sprintf("%d:%s", to.ChatID, text))
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestSendDeliversAndRecordsHistory(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{}, ad, logx.Nop(), nil)

	if err := s.Send(context.Background(), 42, "It's time for Fajr prayer."); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != "42:It's time for Fajr prayer." {
		t.Fatalf("sent = %v", ad.sent)
	}
	if h := s.History(); len(h) != 1 || h[0].ChatID != 42 || h[0].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendKeepsPermanentFailureInChain(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{err: fmt.Errorf("%w: bot was blocked by the user", kit.ErrRecipientUnreachable)}
	s := New(Config{}, ad, logx.Nop(), nil)

	err := s.Send(context.Background(), 42, "hi")
	if !errors.Is(err, kit.ErrRecipientUnreachable) {
		t.Fatalf("Send() = %v, want ErrRecipientUnreachable", err)
	}
}

func TestSendSuppressesDuplicatesWithinWindow(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{DedupWindow: time.Minute}, ad, logx.Nop(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Send(ctx, 42, "same"); err != nil {
			t.Fatalf("Send() = %v", err)
		}
	}
	if err := s.Send(ctx, 7, "same"); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if len(ad.sent) != 2 {
		t.Fatalf("sent = %v, want one per chat", ad.sent)
	}
}

func TestFailedSendIsNotDeduped(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{err: errors.New("timeout")}
	s := New(Config{DedupWindow: time.Minute}, ad, logx.Nop(), nil)
	ctx := context.Background()

	if err := s.Send(ctx, 42, "x"); err == nil {
		t.Fatal("Send() succeeded with failing adapter")
	}
	ad.mu.Lock()
	ad.err = nil
	ad.mu.Unlock()
	if err := s.Send(ctx, 42, "x"); err != nil {
		t.Fatalf("retry Send() = %v", err)
	}
	if len(ad.sent) != 1 {
		t.Fatalf("sent = %v", ad.sent)
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	s := New(Config{RatePerSec: 1}, &fakeAdapter{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	// Drain the single token, then cancel while waiting for the next.
	_ = s.Send(ctx, 1, "a")
	cancel()
	if err := s.Send(ctx, 1, "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() = %v, want context.Canceled", err)
	}
}
