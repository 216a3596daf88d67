package colors

import (
	"fmt"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// FromEnv snapshots DISCORD_COLOR_* variables and builds a Resolver.
// The environment is read once; later changes are not observed.
func FromEnv() (*Resolver, error) {
	raw, err := EnvOverrides()
	if err != nil {
		return nil, err
	}
	return New(raw), nil
}

// EnvOverrides returns the raw DISCORD_COLOR_* values keyed by variable name.
func EnvOverrides() (map[string]string, error) {
	k := koanf.New(".")
	// Keep names verbatim; action names never contain the delimiter.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("colors: load env: %w", err)
	}
	out := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		out[key] = k.String(key)
	}
	return out, nil
}
