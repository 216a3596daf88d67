// Package tgui provides small helpers for Telegram HTML messages:
//   - escaping builders that always yield safe H values
//   - an allow-list sanitizer for untrusted message text
//   - rune-aware truncation and plain-text fallback rendering
package tgui
