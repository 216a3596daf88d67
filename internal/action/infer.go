package action

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// rule maps indicator alternatives to an action type. An alternative matches
// when every one of its tokens occurs in the message.
type rule struct {
	t   Type
	any [][]string
}

func one(tokens ...string) [][]string {
	out := make([][]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, []string{tok})
	}
	return out
}

// rules is evaluated top to bottom; the first match wins.
//
// Ordering:
//   - negated voice states (unmuted, undeafened) before their positive forms
//   - channel moves before joins/leaves ("moved ... channel" may mention both)
//   - joins/leaves before mute, since leave messages carry the 🔇 emoji
//   - server membership (two-token phrases) before presence words
//   - offline before online
//   - warning before error ("warning: send failed" is a warning)
//   - admin last
//
// Tokens are lower-case and matched on word boundaries, so "muted" does not
// match inside "unmuted" and "online" never matches inside "offline".
var rules = []rule{
	{VoiceUnmute, one("unmuted")},
	{VoiceUndeafen, one("undeafened")},
	{VoiceMove, [][]string{{"moved", "channel"}, {"switched", "channel"}}},
	{VoiceJoin, [][]string{{"joined", "channel"}, {"entering", "channel"}, {"connecting", "channel"}, {"connected", "channel"}}},
	{VoiceLeave, [][]string{{"left", "channel"}, {"leaving", "channel"}, {"disconnecting", "channel"}, {"disconnected", "channel"}}},
	{VoiceMute, one("muted", "🔇")},
	{VoiceDeafen, one("deafened")},
	{MemberJoin, [][]string{{"joined", "server"}, {"member joined"}}},
	{MemberLeave, [][]string{{"left", "server"}, {"member left"}}},
	{MemberUpdate, [][]string{{"nickname"}, {"roles", "updated"}, {"roles", "changed"}, {"member updated"}}},
	{StatusOffline, one("offline")},
	{StatusOnline, one("online")},
	{StatusIdle, one("idle", "away")},
	{StatusDND, one("dnd", "do not disturb", "disturb")},
	{Warning, one("warning", "caution", "alert", "⚠")},
	{Error, one("error", "errors", "failed", "failure", "problem", "issue", "❌")},
	{Admin, one("admin", "administrator", "moderator", "staff")},
}

// Infer returns the best-matching action type for message, or Default.
func Infer(message string) Type {
	msg := strings.ToLower(message)
	if strings.TrimSpace(msg) == "" {
		return Default
	}
	for _, r := range rules {
		for _, alt := range r.any {
			if matchAll(msg, alt) {
				return r.t
			}
		}
	}
	return Default
}

func matchAll(msg string, tokens []string) bool {
	for _, tok := range tokens {
		if !containsToken(msg, tok) {
			return false
		}
	}
	return len(tokens) > 0
}

// containsToken reports whether tok occurs in msg with a word boundary on each
// side that starts/ends with a letter or digit.
func containsToken(msg, tok string) bool {
	if tok == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(tok)
	last, _ := utf8.DecodeLastRuneInString(tok)
	checkLeft := isWordRune(first)
	checkRight := isWordRune(last)

	for off := 0; off <= len(msg)-len(tok); {
		i := strings.Index(msg[off:], tok)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(tok)
		ok := true
		if checkLeft && start > 0 {
			r, _ := utf8.DecodeLastRuneInString(msg[:start])
			ok = !isWordRune(r)
		}
		if ok && checkRight && end < len(msg) {
			r, _ := utf8.DecodeRuneInString(msg[end:])
			ok = !isWordRune(r)
		}
		if ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(msg[start:])
		off = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
