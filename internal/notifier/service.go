package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"praypal/internal/eventbus"
	kit "praypal/internal/transport"
	logx "praypal/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier has no adapter")

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the config. The limiter is rebuilt so a new rate takes effect
// on the next send.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		// Telegram allows about 30 messages per second across chats.
		cfg.RatePerSec = 25
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text as a plain message to subscriberID.
func (s *Service) Send(ctx context.Context, subscriberID int64, text string) error {
	return s.SendText(ctx, kit.ChatTarget{ChatID: subscriberID}, text, nil)
}

// SendText waits for the rate limiter, then sends with a bounded timeout.
// A duplicate within the dedup window is dropped and reported as sent.
func (s *Service) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return ErrNoAdapter
	}

	key := dedupKey(to, text)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		s.log.Debug("duplicate message suppressed", logx.Int64("chat", to.ChatID))
		eventbus.Emit(s.bus, "notifier.deduped", NotificationEvent{ChatID: to.ChatID, Key: key, At: time.Now()})
		return nil
	}

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := ad.SendText(callCtx, to, text, opt)
	cancel()

	now := time.Now()
	item := HistoryItem{At: now, ChatID: to.ChatID, Text: text}
	if err != nil {
		item.Error = err.Error()
		s.forget(key)
		eventbus.Emit(s.bus, eventbus.NotifierFailed, NotificationEvent{ChatID: to.ChatID, Key: key, At: now, Error: item.Error})
	} else {
		eventbus.Emit(s.bus, eventbus.NotifierSent, NotificationEvent{ChatID: to.ChatID, Key: key, At: now})
	}
	s.appendHistory(item, cfg.HistorySize)
	return err
}

// History returns recent sends, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(item HistoryItem, size int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func dedupKey(to kit.ChatTarget, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|", to.ChatID)
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiries until within cap.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// forget lets a failed text be retried within the window.
func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}
