package ingest

import (
	"testing"
	"time"
)

// Fixed reference: Wednesday, March 11, 2026.
var refDate = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"compound with weekday and time", "Saturday, June 14, 2026 at 7:30 pm", "2026-06-14", true},
		{"month day year", "June 14, 2026", "2026-06-14", true},
		{"abbreviated month", "Jun 14, 2026", "2026-06-14", true},
		{"ordinal suffix", "June 14th, 2026", "2026-06-14", true},
		{"day first", "14 June 2026", "2026-06-14", true},
		{"iso date", "2026-06-14", "2026-06-14", true},
		{"labeled fragment", "Date: June 14, 2026", "2026-06-14", true},
		{"embedded in prose", "Doors open June 3, 2026 at the Armory", "2026-06-03", true},
		{"glued month and day", "September14, 2026", "2026-09-14", true},
		{"glued year and time", "September 14, 20266:00 PM", "2026-09-14", true},
		{"slash month first", "05/13/2026", "2026-05-13", true},
		{"slash component over twelve is the day", "13/05/2025", "2025-05-13", true},
		{"no year assumes reference year", "Jan 24", "2026-01-24", true},
		{"empty", "", "", false},
		{"no date at all", "Main Street Plaza", "", false},
		{"nonsense numbers", "99/99/2026", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in, refDate)
			if ok != tt.ok {
				t.Fatalf("NormalizeDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("NormalizeDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	// A month-name date must normalize to the same day it names.
	in := "December 1, 2025"
	got, ok := NormalizeDate(in, refDate)
	if !ok {
		t.Fatalf("NormalizeDate(%q) failed", in)
	}
	if bucket := got.Format("2006-01-02"); bucket != "2025-12-01" {
		t.Errorf("round trip = %s, want 2025-12-01", bucket)
	}
}

func TestNormalizeDateRelative(t *testing.T) {
	// Reference is a Wednesday.
	tests := []struct {
		in   string
		want string
	}{
		{"tomorrow", "2026-03-12"},
		{"today", "2026-03-11"},
		{"tonight", "2026-03-11"},
		{"this friday", "2026-03-13"},
		{"next friday", "2026-03-13"},
		{"next wednesday", "2026-03-18"},
		{"this wednesday", "2026-03-11"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in, refDate)
			if !ok {
				t.Fatalf("NormalizeDate(%q) failed", tt.in)
			}
			if bucket := got.Format("2006-01-02"); bucket != tt.want {
				t.Errorf("NormalizeDate(%q) = %s, want %s", tt.in, bucket, tt.want)
			}
		})
	}
}

func TestNormalizeDateParsesTime(t *testing.T) {
	got, ok := NormalizeDate("June 14, 2026 at 7:30 pm", refDate)
	if !ok {
		t.Fatal("parse failed")
	}
	if got.Hour() != 19 || got.Minute() != 30 {
		t.Errorf("time = %02d:%02d, want 19:30", got.Hour(), got.Minute())
	}
}

func TestFindDateTokens(t *testing.T) {
	text := "Happened on January 5, 2020. Next edition 2026-06-14, also listed as 06/14/2026."
	tokens := findDateTokens(text)
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2 (duplicate days collapse): %v", len(tokens), tokens)
	}
}

func TestDateBucket(t *testing.T) {
	if got := dateBucket(nil); got != "" {
		t.Errorf("dateBucket(nil) = %q, want empty", got)
	}
	d := time.Date(2026, 6, 14, 19, 30, 0, 0, time.UTC)
	if got := dateBucket(&d); got != "2026-06-14" {
		t.Errorf("dateBucket = %q, want 2026-06-14", got)
	}
}
