package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var knownDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true, "sqlite3": true, "redis": true}

// Validate checks bounds and parses every duration so a bad reload is
// rejected before it is applied.
func (c *Config) Validate() error {
	var errs []error
	dur := func(key, raw string) {
		if _, err := Duration(key, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("telegram.poll_timeout", c.Telegram.PollTimeout)
	if s := strings.TrimSpace(c.Telegram.LogChat); s != "" {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.log_chat: %q is not a chat id", s))
		}
	}
	dur("discord.timeout", c.Discord.Timeout)

	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 || n.HistorySize < 0 {
			errs = append(errs, errors.New("notifier: counts must be >= 0"))
		}
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.send_timeout", n.SendTimeout)
		dur("notifier.dedup_window", n.DedupWindow)
	}

	if s := c.Storage; s != nil {
		driver := strings.ToLower(strings.TrimSpace(s.Driver))
		switch {
		case !knownDrivers[driver]:
			errs = append(errs, fmt.Errorf("storage.driver: unknown %q", s.Driver))
		case (driver == "file" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(s.Path) == "":
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", driver))
		case driver == "redis" && (s.Redis == nil || strings.TrimSpace(s.Redis.Addr) == ""):
			errs = append(errs, errors.New("storage.redis.addr is required when storage.driver=redis"))
		}
		if s.HistoryLimit < 0 {
			errs = append(errs, errors.New("storage.history_limit must be >= 0"))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	dur("health.request_timeout", c.Health.RequestTimeout)
	if spec := strings.TrimSpace(c.Maintenance.PruneSchedule); spec != "" && !strings.EqualFold(spec, "off") {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.prune_schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(c.Maintenance.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}
