package ingest

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// nextPageSelector matches the usual pagination affordances on listing
// pages.
const nextPageSelector = `a[rel="next"], a[class*=next], [class*=pagination] a[class*=next]`

// ListingCrawler walks a paginated listing site page by page, running an
// extractor over every page it lands on. It stays on the start domain,
// respects a per-domain delay and keeps a visited set so looping
// pagination links cannot trap it.
type ListingCrawler struct {
	Extractor   Extractor
	MaxPages    int
	DomainDelay time.Duration
	UserAgent   string
}

func NewListingCrawler(extractor Extractor) *ListingCrawler {
	return &ListingCrawler{
		Extractor:   extractor,
		MaxPages:    5,
		DomainDelay: 1 * time.Second,
		UserAgent:   userAgentPool[0],
	}
}

// Crawl visits the listing starting at startURL and returns everything
// the extractor found across the visited pages.
func (c *ListingCrawler) Crawl(startURL string) ([]RawCandidate, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url: %w", err)
	}

	collector := colly.NewCollector(
		colly.UserAgent(c.UserAgent),
		colly.AllowedDomains(parsed.Host),
		colly.MaxBodySize(maxBodyBytes),
		colly.DetectCharset(),
	)
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       c.DomainDelay,
		RandomDelay: c.DomainDelay / 2,
	})
	collector.SetRequestTimeout(30 * time.Second)

	var mu sync.Mutex
	visited := map[string]bool{CanonicalizeURL(startURL): true}
	pages := 0
	var out []RawCandidate

	collector.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		pages++
		out = append(out, c.Extractor.Extract(string(r.Body), r.Request.URL.String())...)
	})

	collector.OnHTML(nextPageSelector, func(e *colly.HTMLElement) {
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		canon := CanonicalizeURL(next)

		mu.Lock()
		if pages >= c.MaxPages || visited[canon] {
			mu.Unlock()
			return
		}
		visited[canon] = true
		mu.Unlock()

		e.Request.Visit(next)
	})

	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("[listing] %s: %v", r.Request.URL, err)
	})

	if err := collector.Visit(startURL); err != nil {
		return nil, fmt.Errorf("listing visit failed: %w", err)
	}
	collector.Wait()

	return out, nil
}
