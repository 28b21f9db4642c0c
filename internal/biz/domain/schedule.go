package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a short duration like "10m", "2h", "3d" or "45s",
// or one of the words hour, day and week
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "hour":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	case "week":
		return 7 * 24 * time.Hour, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}

// ParseWhen resolves "in <duration>", "at HH:MM" or "at YYYY-MM-DD HH:MM"
// relative to from. A bare clock time that has already passed today means
// tomorrow.
func ParseWhen(s string, from time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "in "):
		d, err := ParseDuration(strings.TrimPrefix(s, "in "))
		if err != nil {
			return time.Time{}, err
		}
		return from.Add(d), nil

	case strings.HasPrefix(s, "at "):
		value := strings.TrimPrefix(s, "at ")
		if t, err := time.ParseInLocation("2006-01-02 15:04", value, from.Location()); err == nil {
			return t, nil
		}
		clock, err := time.ParseInLocation("15:04", value, from.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q, expected HH:MM or YYYY-MM-DD HH:MM", value)
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), clock.Hour(), clock.Minute(), 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("invalid time %q, expected \"in ...\" or \"at ...\"", s)
	}
}
