package colors

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/internal/action"
)

func TestResolveIsTotal(t *testing.T) {
	r := New(nil)
	for _, at := range action.All() {
		c := r.Resolve(at)
		assert.True(t, Valid(int64(c)), "color for %s out of range: %d", at, c)
	}
	assert.Equal(t, Color(0x00FF00), r.Resolve(action.Type("no_such_action")))
	assert.Empty(t, r.Warnings())
}

func TestResolveDefaults(t *testing.T) {
	r := New(nil)
	assert.Equal(t, Color(0x00FF00), r.Resolve(action.VoiceJoin))
	assert.Equal(t, Color(0xFF0000), r.Resolve(action.VoiceLeave))
	assert.Equal(t, Color(0x0080FF), r.Resolve(action.VoiceMove))
	assert.Equal(t, Color(0x808080), r.Resolve(action.StatusOffline))
	assert.Equal(t, Color(0x800080), r.Resolve(action.Admin))
}

func TestResolveValidOverride(t *testing.T) {
	r := New(map[string]string{"DISCORD_COLOR_VOICE_JOIN": "FF6B6B"})
	assert.Equal(t, Color(0xFF6B6B), r.Resolve(action.VoiceJoin))
	assert.True(t, r.Overridden(action.VoiceJoin))
	assert.False(t, r.Overridden(action.VoiceLeave))
}

func TestResolveInvalidOverrideFallsBack(t *testing.T) {
	r := New(map[string]string{
		"DISCORD_COLOR_VOICE_JOIN":  "00GHIJ",
		"DISCORD_COLOR_VOICE_LEAVE": "",
		"DISCORD_COLOR_WARNING":     "1234567",
	})
	assert.Equal(t, Color(0x00FF00), r.Resolve(action.VoiceJoin))
	assert.Equal(t, Color(0xFF0000), r.Resolve(action.VoiceLeave))
	assert.Equal(t, Color(0xFFFF00), r.Resolve(action.Warning))

	ws := r.Warnings()
	require.Len(t, ws, 3)
	assert.Equal(t, "DISCORD_COLOR_VOICE_JOIN", ws[0].Key)
	assert.Equal(t, "DISCORD_COLOR_VOICE_LEAVE", ws[1].Key)
	assert.Equal(t, "DISCORD_COLOR_WARNING", ws[2].Key)
}

func TestResolveUnknownActionOverride(t *testing.T) {
	r := New(map[string]string{"DISCORD_COLOR_VOICE_EXPLODE": "FFFFFF"})
	ws := r.Warnings()
	require.Len(t, ws, 1)
	assert.Equal(t, "unrecognized action type", ws[0].Reason)
}

func TestOverrideNamesAreCaseSensitive(t *testing.T) {
	r := New(map[string]string{
		"DISCORD_COLOR_voice_join":  "FF6B6B",
		"discord_color_VOICE_LEAVE": "4ECDC4",
	})
	assert.Equal(t, Color(0x00FF00), r.Resolve(action.VoiceJoin))
	assert.Equal(t, Color(0xFF0000), r.Resolve(action.VoiceLeave))
	assert.False(t, r.Overridden(action.VoiceJoin))

	ws := r.Warnings()
	require.Len(t, ws, 2)
	for _, w := range ws {
		assert.Equal(t, "unrecognized action type", w.Reason)
	}
}

func TestDefaultOverrideAppliesToUnknownTypes(t *testing.T) {
	r := New(map[string]string{"DISCORD_COLOR_DEFAULT": "#123456"})
	assert.Equal(t, Color(0x123456), r.Resolve(action.Default))
	assert.Equal(t, Color(0x123456), r.Resolve(action.Type("mystery")))
	// Known types keep their own defaults.
	assert.Equal(t, Color(0xFF0000), r.Resolve(action.Error))
}

func TestParseHex(t *testing.T) {
	for in, want := range map[string]Color{
		"FF6B6B":   0xFF6B6B,
		"ff6b6b":   0xFF6B6B,
		"#00ff00":  0x00FF00,
		"0x4ECDC4": 0x4ECDC4,
		" 9B59B6 ": 0x9B59B6,
	} {
		got, err := ParseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "00GHIJ", "FFF", "1234567", "#", "0x12345G", "+12345"} {
		_, err := ParseHex(in)
		assert.Error(t, err, in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(0))
	assert.True(t, Valid(0xFFFFFF))
	assert.False(t, Valid(-1))
	assert.False(t, Valid(0x1000000))
}

func TestAllSnapshot(t *testing.T) {
	r := New(map[string]string{"VOICE_LEAVE": "4ECDC4"})
	all := r.All()
	require.Len(t, all, len(action.All()))
	assert.Equal(t, Color(0x4ECDC4), all[action.VoiceLeave])

	// Mutating the snapshot does not affect the resolver.
	all[action.VoiceLeave] = 0
	assert.Equal(t, Color(0x4ECDC4), r.Resolve(action.VoiceLeave))
}

func TestHex(t *testing.T) {
	assert.Equal(t, "#00FF00", Color(0x00FF00).Hex())
	assert.Equal(t, 0xFF6B6B, Color(0xFF6B6B).Int())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DISCORD_COLOR_VOICE_JOIN", "FF6B6B")
	t.Setenv("DISCORD_COLOR_STATUS_IDLE", "nothex")

	r, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Color(0xFF6B6B), r.Resolve(action.VoiceJoin))
	assert.Equal(t, Color(0xFFA500), r.Resolve(action.StatusIdle))

	found := false
	for _, w := range r.Warnings() {
		if w.Key == "DISCORD_COLOR_STATUS_IDLE" {
			found = true
		}
	}
	assert.True(t, found, "expected warning for invalid STATUS_IDLE override")
}

func TestResolveConcurrent(t *testing.T) {
	r := New(map[string]string{"DISCORD_COLOR_ADMIN": "AABBCC"})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, at := range action.All() {
				_ = r.Resolve(at)
			}
			assert.Equal(t, Color(0xAABBCC), r.Resolve(action.Admin))
		}()
	}
	wg.Wait()
}
