package ingest

import "testing"

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.com/events?utm_source=x&utm_medium=y", "https://example.com/events"},
		{"https://example.com/events?id=5&fbclid=abc", "https://example.com/events?id=5"},
		{"https://example.com/events#tickets", "https://example.com/events"},
		{"https://example.com/events?id=5", "https://example.com/events?id=5"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/events", "example.com"},
		{"http://venue.org/a/b", "venue.org"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := extractDomain(tt.in); got != tt.want {
			t.Errorf("extractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<p>Jazz   Night <b>at</b> the Blue Room</p>")
	if got != "Jazz Night at the Blue Room" {
		t.Errorf("HTMLToText = %q", got)
	}
}

func TestIsAbsoluteURL(t *testing.T) {
	if !isAbsoluteURL("https://example.com/e") {
		t.Error("https URL should be absolute")
	}
	if isAbsoluteURL("/events/5") {
		t.Error("path should not be absolute")
	}
	if isAbsoluteURL("ftp://example.com") {
		t.Error("only http(s) accepted")
	}
}

func TestNormalizeTitleKey(t *testing.T) {
	if a, b := normalizeTitleKey("Jazz Night"), normalizeTitleKey("  jazz NIGHT!! "); a != b {
		t.Errorf("%q != %q", a, b)
	}
	if got := normalizeTitleKey("Fête de la Musique"); got != "fête de la musique" {
		t.Errorf("unicode letters should survive: %q", got)
	}
}
