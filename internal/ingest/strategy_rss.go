package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSSource reads event feeds directly. Feed items already carry discrete
// fields, so the extraction strategies are skipped and items go straight
// to the scorer.
type RSSSource struct {
	Fetcher Fetcher
	parser  *gofeed.Parser
}

func NewRSSSource(fetcher Fetcher) *RSSSource {
	return &RSSSource{Fetcher: fetcher, parser: gofeed.NewParser()}
}

// FetchItems downloads and parses one feed into raw candidates.
func (s *RSSSource) FetchItems(ctx context.Context, feedURL string) ([]RawCandidate, error) {
	res := s.Fetcher.Fetch(ctx, feedURL)
	if !res.OK {
		return nil, fmt.Errorf("feed fetch failed: %s", feedURL)
	}

	feed, err := s.parser.ParseString(res.HTML)
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}

	var out []RawCandidate
	for _, item := range feed.Items {
		if item == nil || item.Title == "" {
			continue
		}

		desc := HTMLToText(item.Description)
		cand := RawCandidate{
			Title:       cleanText(item.Title),
			Description: desc,
			SourceURL:   item.Link,
			Method:      MethodRSS,
		}
		if cand.SourceURL == "" {
			cand.SourceURL = feedURL
		}
		if item.Image != nil {
			cand.ImageURL = item.Image.URL
		}
		if len(item.Categories) > 0 {
			cand.Category = item.Categories[0]
		}

		cand.StartText = feedItemDateText(item, desc)

		out = append(out, cand)
	}

	log.Printf("[rss] %s: %d items", feedURL, len(out))
	return out, nil
}

// feedItemDateText picks the best available start-date text for a feed
// item: a date mentioned in the title or body wins over the publish time,
// which is usually when the post went up, not when the event happens.
func feedItemDateText(item *gofeed.Item, desc string) string {
	if tokens := findDateTokens(item.Title + " " + desc); len(tokens) > 0 {
		return tokens[0].Format("2006-01-02")
	}
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Format(time.RFC3339)
	}
	return ""
}
