package config

import (
	"os"
	"strings"
)

// Environment variables consulted when a token is not in the file.
var (
	TelegramTokenEnv = []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"}
	DiscordTokenEnv  = []string{"DISCORD_BOT_TOKEN"}
)

func (c *Config) applyEnv() {
	c.Telegram.Token = firstNonEmpty(c.Telegram.Token, TelegramTokenEnv...)
	c.Discord.Token = firstNonEmpty(c.Discord.Token, DiscordTokenEnv...)
}

func firstNonEmpty(v string, keys ...string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	for _, k := range keys {
		if s := strings.TrimSpace(os.Getenv(k)); s != "" {
			return s
		}
	}
	return ""
}
