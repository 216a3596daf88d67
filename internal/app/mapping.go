package app

import (
	"strconv"
	"strings"
	"time"

	"watchbot/internal/config"
	"watchbot/internal/health"
	"watchbot/internal/notifier"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

const defaultPruneSchedule = "@every 10m"

func mapLogging(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.LogChat), 10, 64); err == nil {
		lc.Telegram.ChatID = id
	}
	return lc
}

// mapNotifier converts the notifier section. An omitted section means
// enabled with defaults.
func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.Duration("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := config.Duration("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.Duration("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.Duration("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMax,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
		HistorySize:     n.HistorySize,
	}, nil
}

// mapStorage returns the store config and whether storage is enabled.
func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	out := storage.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(sc.Path),
		BusyTimeout:  busy,
		HistoryLimit: sc.HistoryLimit,
	}
	if r := sc.Redis; r != nil {
		out.Redis = storage.RedisConfig{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix, UseTLS: r.UseTLS}
	}
	return out, true, nil
}

func mapHealth(cfg *config.Config) (health.Config, bool, error) {
	if !cfg.Health.Enabled {
		return health.Config{}, false, nil
	}
	timeout, err := config.Duration("health.request_timeout", cfg.Health.RequestTimeout)
	if err != nil {
		return health.Config{}, false, err
	}
	return health.Config{
		Addr:           strings.TrimSpace(cfg.Health.Addr),
		RequestTimeout: timeout,
		CORSOrigins:    cfg.Health.CORSOrigins,
		Pprof:          cfg.Health.Pprof,
	}, true, nil
}

// pruneSchedule returns the cron spec for dedup pruning, or "" when off.
func pruneSchedule(cfg *config.Config) string {
	spec := strings.TrimSpace(cfg.Maintenance.PruneSchedule)
	switch {
	case spec == "":
		return defaultPruneSchedule
	case strings.EqualFold(spec, "off"):
		return ""
	}
	return spec
}

// recipients returns a copy of the default recipients with lower-case
// provider names and blank entries removed.
func recipients(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Recipients))
	for k, v := range cfg.Recipients {
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
