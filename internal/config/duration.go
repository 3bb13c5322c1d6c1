package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one duration-string field of the config,
// e.g. scheduler.poll_interval or webhook.timeout. An empty field means
// unset and yields zero; negative durations are rejected. path names
// the field in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
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

// ParseDurationOrDefault substitutes def for unset fields. Used for
// fields where zero has no meaning of its own, like the scheduler's
// poll interval and stop timeout.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
