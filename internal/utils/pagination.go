// Package utils provides small parsing helpers for the HTTP layer and CLI.
package utils

import (
	"strconv"
	"strings"
	"time"
)

// Page bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as an int and returns def when s is empty or invalid.
// Surrounding spaces make s invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses page and page_size query values into the accepted range.
func ClampPage(pageStr, sizeStr string) (page, pageSize int) {
	page = max(AtoiDefault(pageStr, DefaultPage), 1)
	pageSize = min(max(AtoiDefault(sizeStr, DefaultPageSize), 1), MaxPageSize)
	return page, pageSize
}

// TotalPages is the number of pages of size pageSize needed for total items.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// ParseHours reads a positive whole number of hours; anything else yields def.
func ParseHours(s string, def time.Duration) time.Duration {
	n := AtoiDefault(strings.TrimSpace(s), 0)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Hour
}

// ParseCutoff accepts an RFC 3339 timestamp or a duration ("720h") measured
// back from now. ok is false when s is neither.
func ParseCutoff(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d).UTC(), true
	}
	return time.Time{}, false
}
