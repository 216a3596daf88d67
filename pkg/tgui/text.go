package tgui

import (
	"strings"
	"unicode/utf8"
)

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated; the ellipsis counts toward n.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}

// Plain strips every tag from h and decodes entities, producing text suitable
// for a send without parse mode.
func Plain(h H) string {
	escaped := Sanitize(h.String(), nil)
	return strings.TrimSpace(unescapeEntities(escaped.String()))
}
