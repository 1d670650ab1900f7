package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one of the config's duration-string fields
// (monitor.interval, collector.timeout, notifier.dedup_window, ...). An
// empty or omitted field reads as zero so each component can apply its own
// default; negative durations are rejected outright.
func ParseDurationField(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField for fields whose zero value is
// not runnable (e.g. monitor.interval): zero falls back to def.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
