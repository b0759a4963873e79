package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order when parsing raw snapshot timestamps.
// Sources disagree on formatting (export tools, spreadsheets, loggers), so
// the parser accepts the common ones rather than forcing upstream cleanup.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseTimestamp parses a raw timestamp string, trying the supported layouts
// in order and falling back to unix seconds. Returns an error when nothing
// matches; callers decide whether that is fatal or a quality issue.
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}

	// Unix seconds, as emitted by some event exporters.
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// ParseDate parses a calendar date (no time component required) and truncates
// to midnight UTC. Used for reference_date and signup_date handling.
func ParseDate(value string) (time.Time, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}, err
	}
	return t.Truncate(24 * time.Hour), nil
}

// WholeDaysBetween returns the floor of the day count from earlier to later.
// Negative when later precedes earlier.
func WholeDaysBetween(earlier, later time.Time) int64 {
	return int64(later.Sub(earlier).Hours() / 24)
}
