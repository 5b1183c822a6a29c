package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseSignedInt64 parses upstream numeric strings that may carry a leading
// "+" or "-" marker. Empty strings parse as zero.
func ParseSignedInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseAbsInt64 parses like ParseSignedInt64 but discards the sign. Upstream
// price fields encode direction in the sign marker, not magnitude.
func ParseAbsInt64(s string) int64 {
	v := ParseSignedInt64(s)
	if v < 0 {
		return -v
	}
	return v
}
