package config

import (
	"reflect"
	"sort"
	"strings"

	"watchbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values. Secrets are reported only
// as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(redactTelegram(oldCfg.Telegram), redactTelegram(newCfg.Telegram)) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Bool("telegram.poll", newCfg.Telegram.Poll),
			logx.Bool("telegram.log_chat_set", strings.TrimSpace(newCfg.Telegram.LogChat) != ""),
			logx.Bool("telegram.send_avatar", newCfg.Telegram.SendAvatar),
		)
	}
	if (oldCfg.Discord.Token != "") != (newCfg.Discord.Token != "") || oldCfg.Discord.Timeout != newCfg.Discord.Timeout {
		changed = append(changed, "discord")
		attrs = append(attrs, logx.Bool("discord.token_set", newCfg.Discord.Token != ""))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.workers", n.Workers),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.String("notifier.dedup_window", n.DedupWindow),
			)
		}
	}
	if !reflect.DeepEqual(redactStorage(oldCfg.Storage), redactStorage(newCfg.Storage)) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", s.Driver))
		}
	}
	if !reflect.DeepEqual(oldCfg.Health, newCfg.Health) {
		changed = append(changed, "health")
		attrs = append(attrs, logx.Bool("health.enabled", newCfg.Health.Enabled), logx.String("health.addr", newCfg.Health.Addr))
	}
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs, logx.String("maintenance.prune_schedule", newCfg.Maintenance.PruneSchedule))
	}
	if !reflect.DeepEqual(oldCfg.Recipients, newCfg.Recipients) {
		changed = append(changed, "recipients")
		names := make([]string, 0, len(newCfg.Recipients))
		for k := range newCfg.Recipients {
			names = append(names, k)
		}
		sort.Strings(names)
		attrs = append(attrs, logx.Strings("recipients", names))
	}
	return changed, attrs
}

func redactTelegram(t TelegramConfig) TelegramConfig {
	if t.Token != "" {
		t.Token = "set"
	}
	return t
}

func redactStorage(s *StorageConfig) *StorageConfig {
	if s == nil || s.Redis == nil {
		return s
	}
	cp := *s
	r := *s.Redis
	if r.Password != "" {
		r.Password = "set"
	}
	cp.Redis = &r
	return &cp
}
