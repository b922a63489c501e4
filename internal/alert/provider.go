// Package alert delivers operator alerts by email.
package alert

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	logx "praypal/pkg/logx"
)

// Provider sends one HTML email.
type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Mailer fans an alert out to every recipient. It implements logx.AlertSink.
type Mailer struct {
	provider   Provider
	recipients []string
	prefix     string
	log        logx.Logger
}

var _ logx.AlertSink = (*Mailer)(nil)

func NewMailer(p Provider, recipients []string, log logx.Logger) *Mailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	rs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			rs = append(rs, r)
		}
	}
	return &Mailer{provider: p, recipients: rs, prefix: "[PrayPalBot] ", log: log}
}

// Alert sends the record to all recipients. Failures are joined; one bad
// address does not stop the rest.
func (m *Mailer) Alert(ctx context.Context, subject, body string) error {
	if m == nil || m.provider == nil || len(m.recipients) == 0 {
		return nil
	}
	htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"
	var errs []error
	for _, to := range m.recipients {
		if err := m.provider.Send(ctx, to, m.prefix+subject, htmlBody); err != nil {
			errs = append(errs, fmt.Errorf("alert to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}
