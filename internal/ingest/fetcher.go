package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// maxBodyBytes caps how much of any response body gets read.
const maxBodyBytes = 10 * 1024 * 1024

// userAgentPool is the fixed set of identification headers rotated across
// fetch attempts to reduce uniform blocking.
var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

// RetryingFetcher fetches pages with rotating identification headers and
// randomized increasing backoff. A fetch that exhausts its retries is a
// zero-candidate result for the caller, never a fatal error.
type RetryingFetcher struct {
	Client     *http.Client
	MaxRetries int
	MaxBody    int64

	// MinBackoff/MaxBackoff bound the politeness sleep between attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewRetryingFetcher() *RetryingFetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &RetryingFetcher{
		Client: &http.Client{
			Timeout:       30 * time.Second,
			Transport:     transport,
			CheckRedirect: safeCheckRedirect,
		},
		MaxRetries: 3,
		MaxBody:    maxBodyBytes,
		MinBackoff: 1 * time.Second,
		MaxBackoff: 5 * time.Second,
	}
}

// Fetch retrieves raw HTML for a URL. Each attempt uses a randomly chosen
// identification header; a 403 forces a rotation to a different one before
// the next try.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) FetchResult {
	ua := userAgentPool[rand.Intn(len(userAgentPool))]
	var lastStatus int

	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return FetchResult{OK: false, StatusCode: lastStatus}
			case <-time.After(f.backoff(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			log.Printf("fetch: bad url %s: %v", url, err)
			return FetchResult{OK: false}
		}

		req.Header.Set("User-Agent", ua)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := f.Client.Do(req)
		if err != nil {
			log.Printf("fetch: attempt %d/%d for %s: %v", attempt+1, f.MaxRetries+1, url, err)
			continue
		}

		lastStatus = resp.StatusCode

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBody))
			resp.Body.Close()
			if err != nil {
				log.Printf("fetch: body read for %s: %v", url, err)
				continue
			}
			return FetchResult{
				OK:         true,
				HTML:       string(body),
				StatusCode: resp.StatusCode,
				FetchedAt:  time.Now(),
			}
		}

		resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden {
			ua = f.rotateUA(ua)
			log.Printf("fetch: 403 from %s, rotating identification header", url)
			continue
		}

		log.Printf("fetch: status %d from %s (attempt %d/%d)", resp.StatusCode, url, attempt+1, f.MaxRetries+1)
	}

	return FetchResult{OK: false, StatusCode: lastStatus}
}

// backoff returns a randomized sleep that grows with the attempt number,
// bounded by [MinBackoff, MaxBackoff].
func (f *RetryingFetcher) backoff(attempt int) time.Duration {
	base := f.MinBackoff * time.Duration(attempt)
	if base > f.MaxBackoff {
		base = f.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(f.MinBackoff)))
	d := base + jitter
	if d > f.MaxBackoff {
		d = f.MaxBackoff
	}
	return d
}

// rotateUA picks a pool entry different from the current one.
func (f *RetryingFetcher) rotateUA(current string) string {
	for i := 0; i < 5; i++ {
		next := userAgentPool[rand.Intn(len(userAgentPool))]
		if next != current {
			return next
		}
	}
	return current
}

// safeDialContext wraps the default dialer to block private IPs.
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	addr, ok := netip.AddrFromSlice(ip)
	if ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}

	return false
}

// safeCheckRedirect limits redirects and validates destinations.
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}

	return nil
}
