package ingest

import (
	"context"
	"time"
)

// ExtractionMethod identifies which strategy produced a candidate.
type ExtractionMethod string

const (
	MethodStructured   ExtractionMethod = "structured"
	MethodMicrodata    ExtractionMethod = "microdata"
	MethodSiteSpecific ExtractionMethod = "site_specific"
	MethodCSSHeuristic ExtractionMethod = "css_heuristic"
	MethodTextMining   ExtractionMethod = "text_mining"
	MethodRSS          ExtractionMethod = "rss"
)

// methodTrust ranks extraction methods for tie-breaking in dedup. Higher wins.
func methodTrust(m ExtractionMethod) int {
	switch m {
	case MethodSiteSpecific:
		return 6
	case MethodStructured:
		return 5
	case MethodRSS:
		return 4
	case MethodMicrodata:
		return 3
	case MethodCSSHeuristic:
		return 2
	case MethodTextMining:
		return 1
	}
	return 0
}

// RawCandidate is an unvalidated, unscored event produced by exactly one
// extractor invocation. Fields may be empty or garbage; the scorer decides.
type RawCandidate struct {
	Title        string
	Description  string
	StartText    string // unparsed date/time fragment
	LocationText string
	PriceText    string
	ImageURL     string
	Category     string
	SourceURL    string
	Method       ExtractionMethod
}

// ScoredEvent is a RawCandidate plus the fields derived by the validator.
type ScoredEvent struct {
	RawCandidate
	ConfidenceScore int        // [0,100]
	NormalizedStart *time.Time // nil when no strategy parsed the date
	ValidTitle      bool
}

// Fingerprint is the identity used for duplicate suppression: a normalized
// title prefix plus the date portion of the start time ("" when unknown).
type Fingerprint struct {
	NormTitle  string
	DateBucket string
}

// FetchResult is the outcome of a page fetch. Failed fetches are reported
// through OK rather than an error so callers degrade to zero candidates.
type FetchResult struct {
	OK         bool
	HTML       string
	StatusCode int
	FetchedAt  time.Time
}

// Fetcher retrieves raw HTML for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Extractor produces raw candidates from fetched HTML.
type Extractor interface {
	Method() ExtractionMethod
	Extract(html, url string) []RawCandidate
}

// RunStats summarizes one scrape run for a source.
type RunStats struct {
	Found                int
	Admitted             int
	SkippedDuplicate     int
	SkippedLowConfidence int
	FlaggedReview        int
	SuppressedPast       int
	Errors               int
}

// Add accumulates another run's counters, used for cross-source totals.
func (s *RunStats) Add(other RunStats) {
	s.Found += other.Found
	s.Admitted += other.Admitted
	s.SkippedDuplicate += other.SkippedDuplicate
	s.SkippedLowConfidence += other.SkippedLowConfidence
	s.FlaggedReview += other.FlaggedReview
	s.SuppressedPast += other.SuppressedPast
	s.Errors += other.Errors
}
