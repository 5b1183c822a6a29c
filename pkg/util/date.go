package util

import (
	"fmt"
	"strconv"
	"time"
)

// LayoutYMD is the compact date layout the upstream API speaks (yyyyMMdd).
const LayoutYMD = "20060102"

// ParseYMD parses a compact yyyyMMdd date string.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.Parse(LayoutYMD, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatYMD renders a date in the compact yyyyMMdd layout.
func FormatYMD(t time.Time) string {
	return t.Format(LayoutYMD)
}

// Today returns the current date truncated to midnight UTC.
func Today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DatesBetween lists every calendar day from `from` to `to` inclusive,
// oldest first. Returns nil when from is after to.
func DatesBetween(from, to time.Time) []time.Time {
	if from.After(to) {
		return nil
	}
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// ParseTime tries RFC3339, RFC3339Nano, yyyyMMdd, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(LayoutYMD, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
