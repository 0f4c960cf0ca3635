package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a Unix-seconds integer or an ISO date/datetime
// (YYYY-MM-DD, YYYY-MM-DDTHH:MM:SS) and returns Unix seconds. Dates without a
// zone are interpreted as UTC.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp %q: want unix seconds, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", s)
}

// FormatTimestamp renders Unix seconds as an RFC 3339 UTC string.
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
