package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// eventTypeVocabulary is the set of schema.org @type values accepted as
// events, with and without the schema.org URL prefix.
var eventTypeVocabulary = map[string]bool{
	"event":          true,
	"sportsevent":    true,
	"musicevent":     true,
	"theaterevent":   true,
	"businessevent":  true,
	"educationevent": true,
}

func isEventType(declared string) bool {
	t := strings.ToLower(strings.TrimSpace(declared))
	t = strings.TrimPrefix(t, "https://schema.org/")
	t = strings.TrimPrefix(t, "http://schema.org/")
	return eventTypeVocabulary[t]
}

// StructuredDataExtractor scans embedded JSON-LD script payloads for event
// objects. It receives the highest trust of the generic strategies: the
// publisher declared the event machine-readably.
type StructuredDataExtractor struct{}

func (e *StructuredDataExtractor) Method() ExtractionMethod { return MethodStructured }

func (e *StructuredDataExtractor) Extract(html, url string) []RawCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []RawCandidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		payload := strings.TrimSpace(sel.Text())
		if payload == "" {
			return
		}
		// Malformed payloads are skipped per script tag, not fatal for the page.
		for _, item := range decodeJSONLD(payload) {
			if cand, ok := candidateFromLDItem(item, url); ok {
				out = append(out, cand)
			}
		}
	})

	return out
}

// decodeJSONLD flattens a JSON-LD payload into event-candidate objects.
// Payloads come as a single object, an array, or a wrapper with @graph.
func decodeJSONLD(payload string) []map[string]any {
	var out []map[string]any

	collect := func(v any) {
		obj, ok := v.(map[string]any)
		if !ok {
			return
		}
		out = append(out, obj)
		if graph, ok := obj["@graph"].([]any); ok {
			for _, g := range graph {
				if inner, ok := g.(map[string]any); ok {
					out = append(out, inner)
				}
			}
		}
	}

	var single map[string]any
	if err := json.Unmarshal([]byte(payload), &single); err == nil {
		collect(single)
		return out
	}

	var list []any
	if err := json.Unmarshal([]byte(payload), &list); err == nil {
		for _, v := range list {
			collect(v)
		}
	}

	return out
}

func candidateFromLDItem(item map[string]any, pageURL string) (RawCandidate, bool) {
	if !declaredTypeIsEvent(item["@type"]) {
		return RawCandidate{}, false
	}

	cand := RawCandidate{
		Title:       cleanText(ldString(item["name"])),
		Description: cleanText(ldString(item["description"])),
		StartText:   strings.TrimSpace(ldString(item["startDate"])),
		SourceURL:   pageURL,
		Method:      MethodStructured,
	}

	if u := ldString(item["url"]); isAbsoluteURL(u) {
		cand.SourceURL = u
	}
	if img := ldString(item["image"]); img != "" {
		cand.ImageURL = img
	}

	cand.LocationText = ldLocationText(item["location"])
	cand.PriceText = ldOfferPrice(item["offers"])

	if cand.Title == "" {
		return RawCandidate{}, false
	}
	return cand, true
}

// declaredTypeIsEvent handles @type as a string or a list of strings.
func declaredTypeIsEvent(v any) bool {
	switch t := v.(type) {
	case string:
		return isEventType(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && isEventType(s) {
				return true
			}
		}
	}
	return false
}

// ldString pulls a string out of a JSON-LD value that may be a plain
// string, a list, or an object with a name/url field.
func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	case map[string]any:
		if s, ok := t["name"].(string); ok {
			return s
		}
		if s, ok := t["url"].(string); ok {
			return s
		}
	}
	return ""
}

func ldLocationText(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return cleanText(ldString(v))
	}

	parts := make([]string, 0, 2)
	if name, ok := obj["name"].(string); ok && name != "" {
		parts = append(parts, name)
	}
	if addr, ok := obj["address"]; ok {
		switch a := addr.(type) {
		case string:
			parts = append(parts, a)
		case map[string]any:
			for _, key := range []string{"streetAddress", "addressLocality", "addressRegion"} {
				if s, ok := a[key].(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return cleanText(strings.Join(parts, ", "))
}

func ldOfferPrice(v any) string {
	switch t := v.(type) {
	case map[string]any:
		if price, ok := t["price"]; ok {
			switch p := price.(type) {
			case string:
				return p
			case float64:
				if p == 0 {
					return "Free"
				}
				return strconv.FormatFloat(p, 'f', -1, 64)
			}
		}
	case []any:
		if len(t) > 0 {
			return ldOfferPrice(t[0])
		}
	}
	return ""
}
