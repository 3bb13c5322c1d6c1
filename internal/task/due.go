package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Accepted due-time forms:
//   - RFC3339: "2026-04-01T09:30:00Z"
//   - Local timestamp: "2026-04-01 09:30:00"
//   - Unix epoch seconds: "1774000000"
//   - Relative offset: "+5m", "90s", "2h30m"
//
// Optional prefixes:
//   - "at:" forces absolute parsing
//   - "in:" forces offset parsing
const localTimeLayout = "2006-01-02 15:04:05"

var reEpoch = regexp.MustCompile(`^\d{9,}$`)

// ParseDueTime resolves a due-time spec string to an absolute time.
// Relative offsets are anchored at now. The zero spec is an error; a
// resolved time in the past is accepted (it fires on the next scan).
func ParseDueTime(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: execution time required", ErrValidation)
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "at:") {
		v := strings.TrimSpace(s[len("at:"):])
		t, err := parseAbsolute(v)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	if strings.HasPrefix(low, "in:") {
		v := strings.TrimSpace(s[len("in:"):])
		d, err := parseOffset(v)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	// Heuristics:
	// - leading '+' => offset
	if strings.HasPrefix(s, "+") {
		d, err := parseOffset(s[1:])
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	// - all digits => epoch seconds
	if reEpoch.MatchString(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid epoch timestamp %q", ErrValidation, raw)
		}
		return time.Unix(sec, 0), nil
	}

	// - parses as a timestamp => absolute
	if t, err := parseAbsolute(s); err == nil {
		return t, nil
	}

	// - parses as a Go duration => offset
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("%w: offset must be > 0", ErrValidation)
		}
		return now.Add(d), nil
	}

	return time.Time{}, fmt.Errorf(
		"%w: invalid execution time %q (use RFC3339, '2006-01-02 15:04:05', epoch seconds, or an offset like '+5m')",
		ErrValidation, raw,
	)
}

func parseAbsolute(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localTimeLayout, v, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrValidation, v)
}

func parseOffset(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("%w: offset required", ErrValidation)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid offset %q (use a Go duration like '5m' or '2h30m')", ErrValidation, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: offset must be > 0", ErrValidation)
	}
	return d, nil
}
