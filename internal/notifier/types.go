package notifier

import (
	"time"

	kit "threadq/internal/transport"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled bool
	// OnSuccess also reports successful publishes. Failures are always reported.
	OnSuccess       bool
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notification is one message for the operator chat. Messages sharing a
// non-empty Key are deduplicated.
type Notification struct {
	Target  kit.ChatTarget
	Text    string
	Key     string
	Options *kit.SendOptions
}

type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Bus event types.
const (
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
)

// NotificationEvent is the payload of the notifier.* bus events.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
