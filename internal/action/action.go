// Package action defines the closed set of notification action types and the
// heuristic that infers one from free-text messages.
package action

import "strings"

// Type tags the semantic category of a notification event.
type Type string

const (
	VoiceJoin     Type = "voice_join"
	VoiceLeave    Type = "voice_leave"
	VoiceMove     Type = "voice_move"
	VoiceMute     Type = "voice_mute"
	VoiceUnmute   Type = "voice_unmute"
	VoiceDeafen   Type = "voice_deafen"
	VoiceUndeafen Type = "voice_undeafen"

	StatusOnline  Type = "status_online"
	StatusOffline Type = "status_offline"
	StatusIdle    Type = "status_idle"
	StatusDND     Type = "status_dnd"

	MemberJoin   Type = "member_join"
	MemberLeave  Type = "member_leave"
	MemberUpdate Type = "member_update"

	Warning Type = "warning"
	Error   Type = "error"
	Admin   Type = "admin"

	Default Type = "default"
)

var all = []Type{
	VoiceJoin, VoiceLeave, VoiceMove, VoiceMute, VoiceUnmute, VoiceDeafen, VoiceUndeafen,
	StatusOnline, StatusOffline, StatusIdle, StatusDND,
	MemberJoin, MemberLeave, MemberUpdate,
	Warning, Error, Admin,
	Default,
}

var known = func() map[Type]struct{} {
	m := make(map[Type]struct{}, len(all))
	for _, t := range all {
		m[t] = struct{}{}
	}
	return m
}()

// All returns every action type in declaration order.
func All() []Type { return append([]Type(nil), all...) }

// Known reports whether t belongs to the closed set.
func (t Type) Known() bool {
	_, ok := known[t]
	return ok
}

func (t Type) String() string { return string(t) }

// EnvKey is the upper-case suffix used by DISCORD_COLOR_<ACTION> variables.
func (t Type) EnvKey() string { return strings.ToUpper(string(t)) }

// Label is a short human-readable name ("voice join").
func (t Type) Label() string { return strings.ReplaceAll(string(t), "_", " ") }

// Parse accepts both "voice_join" and "VOICE_JOIN" spellings.
func Parse(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Known() {
		return "", false
	}
	return t, true
}

// Or returns t when it is known, def otherwise.
func (t Type) Or(def Type) Type {
	if t.Known() {
		return t
	}
	return def
}
