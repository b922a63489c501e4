package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	logx "praypal/pkg/logx"
)

const DefaultBrevoURL = "https://api.brevo.com/v3"

type BrevoConfig struct {
	APIKey   string
	BaseURL  string
	From     string
	FromName string
	Timeout  time.Duration
	// Attempts includes the first try. 0 means 3.
	Attempts uint
	Delay    time.Duration
}

// BrevoProvider sends transactional email through the Brevo API.
type BrevoProvider struct {
	cfg    BrevoConfig
	client *http.Client
	log    logx.Logger
}

func NewBrevoProvider(cfg BrevoConfig, log logx.Logger) *BrevoProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBrevoURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &BrevoProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With(logx.String("comp", "alert.brevo")),
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
}

func (b *BrevoProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(brevoSendRequest{
		Sender:  brevoContact{Email: b.cfg.From, Name: b.cfg.FromName},
		To:      []brevoContact{{Email: to}},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error { return b.post(ctx, payload) },
		retry.Attempts(b.cfg.Attempts),
		retry.Delay(b.cfg.Delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(b.cfg.Delay/2),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.log.Debug("brevo send retry", logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
}

func (b *BrevoProvider) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("brevo: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	// Bad key or payload will not improve on retry.
	if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Unrecoverable(err)
	}
	return err
}
