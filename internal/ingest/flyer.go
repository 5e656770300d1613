package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rpdf "rsc.io/pdf"
)

// maxFlyersPerPage caps how many linked flyers a single page fetch can
// trigger.
const maxFlyersPerPage = 2

// findFlyerLinks returns absolute URLs of PDF flyers linked from the page.
func findFlyerLinks(html, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find(`a[href]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(href)), ".pdf") {
			return true
		}
		out = append(out, resolveURL(pageURL, href))
		return len(out) < maxFlyersPerPage
	})
	return out
}

// extractPDFText pulls the text fragments out of a PDF. The parser panics
// on malformed files, so recover and report it as an ordinary error.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// FlyerDates extracts every distinct date mentioned in a PDF flyer.
func FlyerDates(content []byte) ([]time.Time, error) {
	text, err := extractPDFText(content)
	if err != nil {
		return nil, err
	}
	return findDateTokens(text), nil
}

// fetchFlyerDates downloads linked flyers and collects their date
// mentions, used to backfill candidates the page itself left undated.
func fetchFlyerDates(ctx context.Context, fetcher Fetcher, html, pageURL string) []time.Time {
	var out []time.Time
	for _, flyerURL := range findFlyerLinks(html, pageURL) {
		res := fetcher.Fetch(ctx, flyerURL)
		if !res.OK {
			continue
		}
		dates, err := FlyerDates([]byte(res.HTML))
		if err != nil {
			continue
		}
		out = append(out, dates...)
	}
	return out
}
