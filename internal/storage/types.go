package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled      = errors.New("storage disabled")
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
	Redis       RedisConfig
	// HistoryLimit caps deliveries returned by Recent and kept by the file and
	// redis drivers. 0 means DefaultHistoryLimit.
	HistoryLimit int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	UseTLS   bool
}

const DefaultHistoryLimit = 500

// Delivery statuses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDeduped = "deduped"
	StatusDropped = "dropped"
)

// Delivery records the outcome of one notification to one recipient.
type Delivery struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Provider  string    `json:"provider"`
	Recipient string    `json:"recipient"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms,omitempty"`
	Preview   string    `json:"preview,omitempty"`
}

// Store is the persistence API used by the notifier and the app.
type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	// RecentDeliveries returns up to limit records, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	// PruneDedup removes entries that expired before now.
	PruneDedup(ctx context.Context, now time.Time) (int, error)

	Driver() string
	Close() error
}

func historyLimit(cfg Config) int {
	if cfg.HistoryLimit > 0 {
		return cfg.HistoryLimit
	}
	return DefaultHistoryLimit
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
