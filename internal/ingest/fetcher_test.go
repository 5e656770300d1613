package ingest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testFetcher builds a RetryingFetcher that can reach the loopback test
// server; the production constructor refuses private addresses.
func testFetcher(client *http.Client) *RetryingFetcher {
	return &RetryingFetcher{
		Client:     client,
		MaxRetries: 2,
		MaxBody:    maxBodyBytes,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("request missing User-Agent")
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	res := f.Fetch(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("fetch failed: %+v", res)
	}
	if res.HTML != "<html>ok</html>" {
		t.Errorf("body = %q", res.HTML)
	}
	if res.StatusCode != 200 {
		t.Errorf("status = %d", res.StatusCode)
	}
}

func TestFetchRetriesAfterForbidden(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("welcome back"))
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	res := f.Fetch(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("fetch failed after 403: %+v", res)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	res := f.Fetch(context.Background(), srv.URL)
	if res.OK {
		t.Fatal("fetch should fail when every attempt errors")
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d requests, want 3 (1 + 2 retries)", got)
	}
}

func TestFetchTruncatesLargeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	f := testFetcher(srv.Client())
	f.MaxBody = 10
	res := f.Fetch(context.Background(), srv.URL)
	if !res.OK {
		t.Fatalf("fetch failed: %+v", res)
	}
	if len(res.HTML) != 10 {
		t.Errorf("body length = %d, want 10", len(res.HTML))
	}
}

func TestFetchBadURL(t *testing.T) {
	f := testFetcher(http.DefaultClient)
	res := f.Fetch(context.Background(), "://not-a-url")
	if res.OK {
		t.Fatal("expected failure for malformed URL")
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.0.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
	if !isPrivateIP(nil) {
		t.Error("nil IP should be treated as private")
	}
}
