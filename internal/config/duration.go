package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault reads a duration-typed config field, substituting
// def when the field is empty or zero. Negative durations are rejected.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// ParseDurationField is ParseDurationOrDefault with no substitute value,
// for fields where zero is a meaningful setting.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(path, raw, 0)
}
