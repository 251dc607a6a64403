package config

import (
	"fmt"
	"strings"
	"time"
)

// KeepForever as storage.retention disables pruning.
const KeepForever = "-1"

// parseDuration reads an optional Go duration string. Blank is 0; negative
// values are rejected with the field path in the error.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// Duration resolves an optional duration field, falling back to def when
// blank, zero or malformed. Validate reports malformed values up front.
func Duration(path, raw string, def time.Duration) time.Duration {
	d, err := parseDuration(path, raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// CooldownDuration returns the pause between publish attempts. Unlike other
// fields an explicit "0s" is kept as 0; only a blank value takes the default.
func (c *Config) CooldownDuration() time.Duration {
	if strings.TrimSpace(c.Worker.Cooldown) == "" {
		return DefaultCooldown
	}
	d, _ := parseDuration("worker.cooldown", c.Worker.Cooldown)
	return d
}

// RetentionDuration returns how long outcome records are kept: 0 for the
// store default, -1 for KeepForever.
func (s StorageConfig) RetentionDuration() (time.Duration, error) {
	r := strings.TrimSpace(s.Retention)
	if r == KeepForever {
		return -1, nil
	}
	return parseDuration("storage.retention", r)
}

// BusyTimeoutDuration returns the sqlite busy timeout, one second when unset.
func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	d, err := parseDuration("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return time.Second, nil
	}
	return d, nil
}
