package notifier

import "time"

// Config controls outbound delivery.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	HistorySize int
	// DedupWindow suppresses an identical text to the same chat. 0 disables.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
