package notifier

import (
	"context"
	"time"

	"watchbot/internal/format"
)

// Provider delivers a rendered request to one recipient on one platform.
type Provider interface {
	Name() string
	Send(ctx context.Context, recipient string, req format.Request) error
}

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	HistorySize     int
}

// Event types published on the bus.
const (
	EventQueued  = "notifier.queued"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
)

// Event is the Data payload of notifier bus events.
type Event struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Recipient string    `json:"recipient"`
	Action    string    `json:"action"`
	Key       string    `json:"key,omitempty"`
	At        time.Time `json:"at"`
	Attempts  int       `json:"attempts,omitempty"`
	TookMS    int64     `json:"took_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	Preview   string    `json:"preview,omitempty"`
}

// HistoryItem is one finished delivery kept in memory.
type HistoryItem struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Provider  string    `json:"provider"`
	Recipient string    `json:"recipient"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
	Preview   string    `json:"preview,omitempty"`
}

// Result is the per-provider outcome of NotifyAll.
type Result struct {
	ID  string
	Err error
}
