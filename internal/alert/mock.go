package alert

import (
	"context"
	"sync"

	logx "praypal/pkg/logx"
)

// Sent is one email captured by MockProvider.
type Sent struct {
	To      string
	Subject string
	Body    string
}

// MockProvider logs emails instead of sending them.
type MockProvider struct {
	log logx.Logger

	mu   sync.Mutex
	sent []Sent
}

func NewMockProvider(log logx.Logger) *MockProvider {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MockProvider{log: log.With(logx.String("comp", "alert.mock"))}
}

func (m *MockProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	m.sent = append(m.sent, Sent{To: to, Subject: subject, Body: htmlBody})
	m.mu.Unlock()
	m.log.Info("mock email", logx.String("to", to), logx.String("subject", subject), logx.Int("body_len", len(htmlBody)))
	return nil
}

func (m *MockProvider) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}
