package ingest

import (
	"strings"
)

// KnownEvent is a hand-verified event a partner site is expected to list:
// both the title phrase and the date phrase must appear in the page text
// before the rule fires.
type KnownEvent struct {
	TitlePhrase string
	DatePhrase  string
	Location    string
	Price       string
}

// SiteRule holds the known events for one partner domain.
type SiteRule struct {
	DomainSubstring string
	Events          []KnownEvent
}

// SiteRegistry maps partner domains to hand-coded extraction rules. It is
// injected into the pipeline rather than kept as package state so tests and
// callers control the allow-list.
type SiteRegistry struct {
	rules []SiteRule
}

func NewSiteRegistry(rules []SiteRule) *SiteRegistry {
	return &SiteRegistry{rules: rules}
}

// RuleFor returns the rule matching the URL's domain, or nil.
func (r *SiteRegistry) RuleFor(url string) *SiteRule {
	domain := extractDomain(url)
	if domain == "" {
		return nil
	}
	for i := range r.rules {
		if strings.Contains(domain, r.rules[i].DomainSubstring) {
			return &r.rules[i]
		}
	}
	return nil
}

// SiteSpecificExtractor matches hand-verified events against page text for
// a small allow-list of partner domains. Dates are verified per site, so
// the scorer grants this method its maximal trust bonus.
type SiteSpecificExtractor struct {
	Registry *SiteRegistry
}

func (e *SiteSpecificExtractor) Method() ExtractionMethod { return MethodSiteSpecific }

func (e *SiteSpecificExtractor) Extract(html, url string) []RawCandidate {
	if e.Registry == nil {
		return nil
	}
	rule := e.Registry.RuleFor(url)
	if rule == nil {
		return nil
	}

	pageText := strings.ToLower(HTMLToText(html))

	var out []RawCandidate
	for _, known := range rule.Events {
		if known.TitlePhrase == "" || known.DatePhrase == "" {
			continue
		}
		if !strings.Contains(pageText, strings.ToLower(known.TitlePhrase)) {
			continue
		}
		if !strings.Contains(pageText, strings.ToLower(known.DatePhrase)) {
			continue
		}
		out = append(out, RawCandidate{
			Title:        known.TitlePhrase,
			StartText:    known.DatePhrase,
			LocationText: known.Location,
			PriceText:    known.Price,
			SourceURL:    url,
			Method:       MethodSiteSpecific,
		})
	}

	return out
}
