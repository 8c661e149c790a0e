package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	QueueSize   int
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
}

const (
	defaultQueueSize   = 256
	defaultRatePerSec  = 1
	defaultBurst       = 3
	defaultSendTimeout = 10 * time.Second
	historySize        = 100
)

type HistoryItem struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
	Error  string    `json:"error,omitempty"`
}

// NotificationEvent is published on the event bus for each queued, sent,
// dropped, or failed notification.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

const (
	EventQueued  = "notifier.queued"
	EventSent    = "notifier.sent"
	EventDropped = "notifier.dropped"
	EventFailed  = "notifier.failed"
)
