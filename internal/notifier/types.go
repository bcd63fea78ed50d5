package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	SendTimeout     time.Duration
}

// HistoryItem is one delivered notification, kept for status output.
type HistoryItem struct {
	At    time.Time
	Key   string
	Title string
}

// Stats are cumulative counters since Start.
type Stats struct {
	Queued  uint64
	Sent    uint64
	Deduped uint64
	Failed  uint64
	Pending int
}

// NotificationEvent is published on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Channel  string    `json:"channel"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	Title    string    `json:"title,omitempty"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
