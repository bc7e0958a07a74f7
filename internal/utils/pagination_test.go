package utils

import (
	"testing"
	"time"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, 20},
		{"3", "50", 3, 50},
		{"0", "0", 1, 1},
		{"-2", "1000", 1, 100},
		{"x", "y", 1, 20},
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%q, %q) = %d, %d", tc.page, tc.size, p, s)
		}
	}
}

func TestTotalPages(t *testing.T) {
	if got := TotalPages(41, 20); got != 3 {
		t.Fatalf("TotalPages(41, 20) = %d", got)
	}
	if got := TotalPages(0, 20); got != 0 {
		t.Fatalf("TotalPages(0, 20) = %d", got)
	}
	if got := TotalPages(5, 0); got != 0 {
		t.Fatalf("TotalPages(5, 0) = %d", got)
	}
}

func TestParseHours(t *testing.T) {
	if got := ParseHours("72", time.Hour); got != 72*time.Hour {
		t.Fatalf("got %v", got)
	}
	for _, s := range []string{"", "0", "-1", "1.5", "abc"} {
		if got := ParseHours(s, 24*time.Hour); got != 24*time.Hour {
			t.Fatalf("ParseHours(%q) = %v", s, got)
		}
	}
}

func TestParseCutoff(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	got, ok := ParseCutoff("2026-01-01T00:00:00Z", now)
	if !ok || !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v %v", got, ok)
	}
	got, ok = ParseCutoff("48h", now)
	if !ok || !got.Equal(now.Add(-48*time.Hour)) {
		t.Fatalf("duration = %v %v", got, ok)
	}
	for _, s := range []string{"", "yesterday", "-5h"} {
		if _, ok := ParseCutoff(s, now); ok {
			t.Fatalf("ParseCutoff(%q) accepted", s)
		}
	}
}
