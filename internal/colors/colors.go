// Package colors resolves Discord embed colors per action type.
//
// Resolution order for an action:
//  1. a validated DISCORD_COLOR_<ACTION> override
//  2. the built-in default for that action
//  3. the resolved DEFAULT color
//  4. Fallback (green)
//
// A Resolver is immutable once built; the full table is computed up front so
// lookups are lock-free and safe from any goroutine.
package colors

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"watchbot/internal/action"
)

// EnvPrefix names the environment variables that override colors.
const EnvPrefix = "DISCORD_COLOR_"

// Color is a 24-bit RGB value.
type Color uint32

// Fallback is used when nothing else resolves.
const Fallback Color = 0x00FF00

// Hex renders the color as #RRGGBB.
func (c Color) Hex() string { return fmt.Sprintf("#%06X", uint32(c)&0xFFFFFF) }

// Int returns the color as the int Discord embeds expect.
func (c Color) Int() int { return int(uint32(c) & 0xFFFFFF) }

// Valid reports whether v fits in 24 bits.
func Valid(v int64) bool { return v >= 0 && v <= 0xFFFFFF }

var defaults = map[action.Type]Color{
	action.VoiceJoin:     0x00FF00, // green
	action.VoiceLeave:    0xFF0000, // red
	action.VoiceMove:     0x0080FF, // blue
	action.VoiceMute:     0xFFFF00, // yellow
	action.VoiceUnmute:   0x00FF00,
	action.VoiceDeafen:   0xFFA500, // orange
	action.VoiceUndeafen: 0x00FF00,

	action.StatusOnline:  0x00FF00,
	action.StatusOffline: 0x808080, // gray
	action.StatusIdle:    0xFFA500,
	action.StatusDND:     0xFF0000,

	action.MemberJoin:   0x32CD32, // lime green
	action.MemberLeave:  0xDC143C, // crimson
	action.MemberUpdate: 0x1E90FF, // dodger blue

	action.Warning: 0xFFFF00,
	action.Error:   0xFF0000,
	action.Admin:   0x800080, // purple

	action.Default: 0x00FF00,
}

// Builtin returns the built-in color for t, if any.
func Builtin(t action.Type) (Color, bool) {
	c, ok := defaults[t]
	return c, ok
}

// Warning describes an override that was ignored.
type Warning struct {
	Key    string // environment variable name
	Value  string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s=%q: %s", w.Key, w.Value, w.Reason)
}

// Resolver maps action types to colors.
type Resolver struct {
	table     map[action.Type]Color
	overrides map[action.Type]Color
	warnings  []Warning
}

// New builds a resolver from raw override values.
//
// Keys may be full variable names (DISCORD_COLOR_VOICE_JOIN) or bare
// suffixes (VOICE_JOIN). Names are case-sensitive like environment
// variables. Invalid entries are skipped and reported via Warnings.
func New(raw map[string]string) *Resolver {
	r := &Resolver{
		table:     make(map[action.Type]Color, len(defaults)),
		overrides: map[action.Type]Color{},
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := raw[key]
		name := strings.TrimPrefix(strings.TrimSpace(key), EnvPrefix)
		t, ok := byEnvKey[name]
		if !ok {
			r.warnings = append(r.warnings, Warning{Key: envName(name), Value: val, Reason: "unrecognized action type"})
			continue
		}
		c, err := ParseHex(val)
		if err != nil {
			r.warnings = append(r.warnings, Warning{Key: envName(name), Value: val, Reason: err.Error()})
			continue
		}
		r.overrides[t] = c
	}

	for _, t := range action.All() {
		r.table[t] = r.compute(t)
	}
	return r
}

func envName(suffix string) string { return EnvPrefix + suffix }

var byEnvKey = func() map[string]action.Type {
	m := make(map[string]action.Type, len(defaults))
	for _, t := range action.All() {
		m[t.EnvKey()] = t
	}
	return m
}()

func (r *Resolver) compute(t action.Type) Color {
	if c, ok := r.overrides[t]; ok {
		return c
	}
	if c, ok := defaults[t]; ok {
		return c
	}
	if t != action.Default {
		return r.compute(action.Default)
	}
	return Fallback
}

// Resolve returns the color for t. Unknown types resolve like Default.
func (r *Resolver) Resolve(t action.Type) Color {
	if r == nil {
		if c, ok := defaults[t]; ok {
			return c
		}
		return defaults[action.Default]
	}
	if c, ok := r.table[t]; ok {
		return c
	}
	if c, ok := r.table[action.Default]; ok {
		return c
	}
	return Fallback
}

// All snapshots the resolved table.
func (r *Resolver) All() map[action.Type]Color {
	out := make(map[action.Type]Color, len(defaults))
	for _, t := range action.All() {
		out[t] = r.Resolve(t)
	}
	return out
}

// Overridden reports whether t's color came from configuration.
func (r *Resolver) Overridden(t action.Type) bool {
	if r == nil {
		return false
	}
	_, ok := r.overrides[t]
	return ok
}

// Warnings lists overrides that were rejected, sorted by variable name.
func (r *Resolver) Warnings() []Warning {
	if r == nil {
		return nil
	}
	return append([]Warning(nil), r.warnings...)
}

// ParseHex parses a 6-digit hex color. Surrounding whitespace and a leading
// "#" or "0x" are tolerated; anything else is rejected.
func ParseHex(s string) (Color, error) {
	v := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(v, "#"):
		v = v[1:]
	case strings.HasPrefix(v, "0x"), strings.HasPrefix(v, "0X"):
		v = v[2:]
	}
	if len(v) != 6 {
		return 0, fmt.Errorf("want 6 hex digits, got %d characters", len(v))
	}
	for i := 0; i < len(v); i++ {
		if !isHex(v[i]) {
			return 0, fmt.Errorf("invalid hex digit %q", v[i])
		}
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse hex: %w", err)
	}
	return Color(n), nil
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
