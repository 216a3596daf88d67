package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration parses a non-negative Go duration string. Empty is zero.
// key names the field in error messages.
func Duration(key, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}

// DurationOr is Duration with def substituted for zero.
func DurationOr(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := Duration(key, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
