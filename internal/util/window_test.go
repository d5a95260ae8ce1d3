package util

import (
	"testing"
	"time"
)

func TestWindowContains(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 30, 0, time.UTC) }
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		want       bool
	}{
		{"unbounded", "", "", at(13, 0), true},
		{"same day inside", "09:00", "11:00", at(10, 0), true},
		{"same day end inclusive", "09:00", "11:00", at(11, 0), true},
		{"same day outside", "09:00", "11:00", at(11, 1), false},
		{"wrap after midnight", "23:00", "02:00", at(1, 0), true},
		{"wrap before midnight", "23:00", "02:00", at(23, 30), true},
		{"wrap outside", "23:00", "02:00", at(12, 0), false},
		{"open end", "22:00", "", at(22, 15), true},
		{"open start", "", "06:00", at(7, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := InWindow(tt.now, tt.start, tt.end, "UTC")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("got %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestWindowTimezone(t *testing.T) {
	w, err := ParseWindow("02:00", "03:00", "Asia/Tokyo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Contains(time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected 02:30 JST to be inside the window")
	}
}

func TestParseWindowErrors(t *testing.T) {
	for _, tc := range [][3]string{{"25:00", "", ""}, {"", "noon", ""}, {"", "", "Mars/Base"}} {
		if _, err := ParseWindow(tc[0], tc[1], tc[2]); err == nil {
			t.Fatalf("expected error for %v", tc)
		}
	}
}
