package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MicrodataExtractor scans inline itemscope/itemprop annotations for the
// same event-type vocabulary the structured-data extractor accepts.
type MicrodataExtractor struct{}

func (e *MicrodataExtractor) Method() ExtractionMethod { return MethodMicrodata }

func (e *MicrodataExtractor) Extract(html, url string) []RawCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []RawCandidate
	doc.Find("[itemscope][itemtype]").Each(func(_ int, scope *goquery.Selection) {
		itemType, _ := scope.Attr("itemtype")
		if !isEventType(itemType) {
			return
		}

		cand := RawCandidate{
			Title:        itempropText(scope, "name"),
			Description:  itempropText(scope, "description"),
			StartText:    itempropValue(scope, "startDate"),
			LocationText: microdataLocation(scope),
			PriceText:    itempropValue(scope, "price"),
			SourceURL:    url,
			Method:       MethodMicrodata,
		}

		if href := itempropAttr(scope, "url", "href"); href != "" {
			cand.SourceURL = resolveURL(url, href)
		}
		if src := itempropAttr(scope, "image", "src"); src != "" {
			cand.ImageURL = resolveURL(url, src)
		}

		if cand.Title == "" {
			return
		}
		out = append(out, cand)
	})

	return out
}

// itempropText returns the visible text of the first matching itemprop.
func itempropText(scope *goquery.Selection, prop string) string {
	return cleanText(scope.Find(`[itemprop="` + prop + `"]`).First().Text())
}

// itempropValue prefers the machine-readable content/datetime attribute
// over visible text, which is how well-formed microdata encodes dates.
func itempropValue(scope *goquery.Selection, prop string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("datetime"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return cleanText(sel.Text())
}

func itempropAttr(scope *goquery.Selection, prop, attr string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr(attr); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// microdataLocation digs one level into a nested Place scope when present.
func microdataLocation(scope *goquery.Selection) string {
	loc := scope.Find(`[itemprop="location"]`).First()
	if loc.Length() == 0 {
		return ""
	}
	if name := cleanText(loc.Find(`[itemprop="name"]`).First().Text()); name != "" {
		addr := cleanText(loc.Find(`[itemprop="address"]`).First().Text())
		if addr != "" && addr != name {
			return name + ", " + addr
		}
		return name
	}
	return cleanText(loc.Text())
}
