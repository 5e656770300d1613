package ingest

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Default fallback selector lists, tried in order per field. Containers
// are guesses at event-ish wrappers; the first selector that matches
// anything on the page wins.
var defaultContainerSelectors = []string{
	"[class*=event-card]",
	"[class*=event-item]",
	"[class*=event-list] li",
	"article[class*=event]",
	"div[class*=event]",
	"li[class*=event]",
	"[class*=calendar-item]",
	"[class*=listing]",
	"article",
}

var defaultFieldSelectors = map[string][]string{
	"title":       {"h1", "h2", "h3", "[class*=title]", "[class*=name]", "a"},
	"date":        {"time", "[class*=date]", "[class*=when]", "[class*=time]"},
	"location":    {"[class*=location]", "[class*=venue]", "[class*=where]", "address"},
	"description": {"[class*=description]", "[class*=summary]", "[class*=excerpt]", "p"},
	"price":       {"[class*=price]", "[class*=cost]", "[class*=ticket]"},
	"link":        {"a[href]"},
	"image":       {"img[src]"},
}

var eventKeywords = []string{
	"concert", "festival", "show", "workshop", "class", "meetup", "meeting",
	"fair", "market", "exhibit", "exhibition", "performance", "gala", "night",
	"party", "fundraiser", "tournament", "race", "run", "lecture", "talk",
	"screening", "tasting", "open house", "trivia", "karaoke", "live music",
}

func containsEventKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range eventKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SelectorOverrides maps a field name ("container", "title", "date",
// "location", "description", "price", "link", "image") to an ordered list
// of selector patterns that take precedence over the defaults.
type SelectorOverrides map[string][]string

// validSelectors filters a list down to syntactically valid CSS selectors.
// An invalid caller-supplied selector is logged and dropped, never fatal.
func validSelectors(field string, selectors []string) []string {
	out := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if _, err := cascadia.Compile(s); err != nil {
			log.Printf("selector override %q for %s is invalid, ignoring: %v", s, field, err)
			continue
		}
		out = append(out, s)
	}
	return out
}

// CSSHeuristicExtractor guesses at event containers with an ordered
// selector list, then extracts each field through its own fallback chain.
type CSSHeuristicExtractor struct {
	Overrides SelectorOverrides
}

func (e *CSSHeuristicExtractor) Method() ExtractionMethod { return MethodCSSHeuristic }

// selectorsFor merges valid overrides ahead of the defaults for a field.
func (e *CSSHeuristicExtractor) selectorsFor(field string, defaults []string) []string {
	if e.Overrides == nil {
		return defaults
	}
	override, ok := e.Overrides[field]
	if !ok {
		return defaults
	}
	valid := validSelectors(field, override)
	if len(valid) == 0 {
		return defaults
	}
	return append(valid, defaults...)
}

func (e *CSSHeuristicExtractor) Extract(html, url string) []RawCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	containers := e.findContainers(doc)
	if containers == nil {
		return nil
	}

	var out []RawCandidate
	containers.Each(func(_ int, container *goquery.Selection) {
		cand, ok := e.extractFromContainer(container, url)
		if ok {
			out = append(out, cand)
		}
	})

	return out
}

// findContainers tries the container selector list in order and returns
// the first non-empty match.
func (e *CSSHeuristicExtractor) findContainers(doc *goquery.Document) *goquery.Selection {
	for _, sel := range e.selectorsFor("container", defaultContainerSelectors) {
		matched := doc.Find(sel)
		if matched.Length() > 0 {
			return matched
		}
	}
	return nil
}

func (e *CSSHeuristicExtractor) extractFromContainer(container *goquery.Selection, pageURL string) (RawCandidate, bool) {
	title := e.firstText(container, "title")
	if title == "" {
		return RawCandidate{}, false
	}

	cand := RawCandidate{
		Title:        title,
		StartText:    e.firstText(container, "date"),
		LocationText: e.firstText(container, "location"),
		Description:  e.firstText(container, "description"),
		PriceText:    e.firstText(container, "price"),
		SourceURL:    pageURL,
		Method:       MethodCSSHeuristic,
	}

	if href := e.firstAttr(container, "link", "href"); href != "" {
		cand.SourceURL = CanonicalizeURL(resolveURL(pageURL, href))
	}
	if src := e.firstAttr(container, "image", "src"); src != "" {
		cand.ImageURL = resolveURL(pageURL, src)
	}

	// The looks-like-an-event gate: a keyword in the title, a date we
	// managed to pull out, or at least a 3-word title.
	if !containsEventKeyword(cand.Title) && cand.StartText == "" && wordCount(cand.Title) < 3 {
		return RawCandidate{}, false
	}

	return cand, true
}

// firstText walks the field's fallback selectors and returns the first
// non-empty text match inside the container.
func (e *CSSHeuristicExtractor) firstText(container *goquery.Selection, field string) string {
	for _, sel := range e.selectorsFor(field, defaultFieldSelectors[field]) {
		if text := cleanText(container.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func (e *CSSHeuristicExtractor) firstAttr(container *goquery.Selection, field, attr string) string {
	for _, sel := range e.selectorsFor(field, defaultFieldSelectors[field]) {
		if v, ok := container.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
