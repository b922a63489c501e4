package prayertimes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/dgraph-io/ristretto"

	logx "praypal/pkg/logx"
)

const (
	DefaultBaseURL = "https://muslimsalat.com"

	maxBodyBytes = 1 << 20
)

type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	CacheTTL      time.Duration
	CacheSize     int
	RetryAttempts uint
	RetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 100
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// Client fetches weekly time-tables and caches successful results.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *ristretto.Cache
	log   logx.Logger
	now   func() time.Time
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.CacheSize) * 10,
		MaxCost:     int64(cfg.CacheSize),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("prayertimes cache: %w", err)
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache,
		log:   log.With(logx.String("comp", "prayertimes")),
		now:   time.Now,
	}, nil
}

func (c *Client) Close() { c.cache.Close() }

func cacheKey(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

// Fetch returns the weekly time-table for location. Only successes are cached.
func (c *Client) Fetch(ctx context.Context, location string) (Snapshot, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Snapshot{}, &QueryError{Location: location, Reason: "Location is empty."}
	}
	key := cacheKey(location)
	if v, ok := c.cache.Get(key); ok {
		if snap, ok := v.(Snapshot); ok {
			return snap, nil
		}
	}

	var snap Snapshot
	err := retry.Do(
		func() error {
			s, err := c.fetchOnce(ctx, location)
			if err != nil {
				return err
			}
			snap = s
			return nil
		},
		retry.Attempts(c.cfg.RetryAttempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("prayer times fetch retry", logx.String("location", location), logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			c.log.Info("prayer times query rejected", logx.String("location", location), logx.String("reason", qe.Reason))
		} else {
			c.log.Warn("prayer times fetch failed", logx.String("location", location), logx.Err(err))
		}
		return Snapshot{}, err
	}

	c.cache.SetWithTTL(key, snap, 1, c.cfg.CacheTTL)
	c.cache.Wait()
	return snap, nil
}

func (c *Client) fetchOnce(ctx context.Context, location string) (Snapshot, error) {
	u := c.cfg.BaseURL + "/" + url.PathEscape(location) + "/weekly.json"
	if c.cfg.APIKey != "" {
		u += "?key=" + url.QueryEscape(c.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Snapshot{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Snapshot{}, &StatusError{Code: resp.StatusCode}
	}
	snap, err := decodeSnapshot(location, body, c.now())
	if err != nil {
		return Snapshot{}, retry.Unrecoverable(err)
	}
	return snap, nil
}

// retryable reports whether err is a transport failure or a 5xx/429 reply.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var ne net.Error
		return errors.As(err, &ne) && ne.Timeout()
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return false
	}
	return !errors.Is(err, ErrInvalidResponse) && !errors.Is(err, ErrNoTimes)
}
