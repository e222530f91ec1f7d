package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrMissingRange = errors.New("start and end dates are required")

const dateOnly = "2006-01-02"

// ParseRange reads report bounds given as RFC 3339 timestamps or YYYY-MM-DD
// dates. A date-only end covers that whole day.
func ParseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, ErrMissingRange
	}
	start, _, err := parseBound(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	end, dayOnly, err := parseBound(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	if dayOnly {
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, end, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateOnly, v); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", v)
	}
	return t.UTC(), false, nil
}
