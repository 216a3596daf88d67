package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Discord     DiscordConfig     `json:"discord"`
	Logging     LoggingConfig     `json:"logging"`
	Notifier    *NotifierConfig   `json:"notifier,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Health      HealthConfig      `json:"health"`
	Maintenance MaintenanceConfig `json:"maintenance"`

	// Recipients maps provider name to the default recipient used when a
	// request does not name one (telegram chat id, discord user id).
	Recipients map[string]string `json:"recipients,omitempty"`
}

// TelegramConfig configures the Telegram transport.
//
// Token falls back to TELEGRAM_BOT_TOKEN, then BOT_TOKEN.
type TelegramConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"`
	// Poll enables long polling so /start and /id answer with the chat id.
	Poll        bool   `json:"poll,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChat receives log events when logging.telegram is enabled.
	LogChat        string `json:"log_chat,omitempty"`
	SendAvatar     bool   `json:"send_avatar,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

// DiscordConfig configures the Discord DM transport.
//
// Token falls back to DISCORD_BOT_TOKEN.
type DiscordConfig struct {
	Token   string `json:"token"`
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls the async delivery pipeline.
// If the whole section is omitted, the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/watchbot.db" }
type StorageConfig struct {
	Driver       string       `json:"driver"`
	Path         string       `json:"path,omitempty"`
	BusyTimeout  string       `json:"busy_timeout,omitempty"` // sqlite
	HistoryLimit int          `json:"history_limit,omitempty"`
	Redis        *RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	UseTLS   bool   `json:"use_tls,omitempty"`
}

// HealthConfig controls the diagnostics HTTP server.
//
// Prefer a loopback address; the API can send notifications.
type HealthConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr,omitempty"` // default "127.0.0.1:8080"
	RequestTimeout string   `json:"request_timeout,omitempty"`
	CORSOrigins    []string `json:"cors_origins,omitempty"`
	Pprof          bool     `json:"pprof,omitempty"`
}

// MaintenanceConfig schedules housekeeping jobs.
type MaintenanceConfig struct {
	// PruneSchedule is a cron spec (5 fields or "@every 10m") for pruning
	// expired dedup entries. Empty means "@every 10m"; "off" disables it.
	PruneSchedule string `json:"prune_schedule,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}
