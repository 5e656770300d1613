package ingest

import (
	"regexp"
	"strings"
	"time"
)

// AdmissionThreshold is the minimum confidence score an event needs to
// reach the deduplicator. One canonical value is used everywhere.
const AdmissionThreshold = 55

// Point values for the confidence score. Bonuses can sum past 100; the
// final score is clamped.
const (
	pointsValidTitle    = 30
	pointsPartialTitle  = 15
	pointsFutureDate    = 25
	pointsPastDate      = 10
	pointsLocation      = 15
	pointsLongDesc      = 15
	pointsShortDesc     = 8
	pointsURL           = 10
	pointsImage         = 2
	pointsPrice         = 2
	pointsCategory      = 1
	pointsTrustedMethod = 25
	spamPenalty         = 20
)

// knownNonTitles are exact strings sites emit as labels, not event names.
var knownNonTitles = map[string]bool{
	"event":           true,
	"events":          true,
	"event date":      true,
	"event type":      true,
	"event details":   true,
	"upcoming events": true,
	"calendar":        true,
	"more info":       true,
	"read more":       true,
	"learn more":      true,
}

// spamTerms is the fixed block-list; each match in title+description costs
// a fixed penalty.
var spamTerms = []string{
	"casino", "poker", "slots", "betting", "jackpot",
	"viagra", "cialis", "pharmacy online", "pills",
	"mlm", "multi-level marketing", "passive income", "get rich",
	"click here", "buy now", "limited time offer", "act now",
	"work from home", "make money fast", "free money",
	"weight loss", "miracle cure",
}

var (
	markupArtifactRe = regexp.MustCompile(`<[^>]*>|&lt;|&gt;|\{\{|\}\}`)
	locationOnlyRe   = regexp.MustCompile(`(?i)^\d+(st|nd|rd|th)?\s+(?:\w+\s+)?(floor|st\.?|street|ave\.?|avenue|rd\.?|road|blvd\.?|suite|room)\b`)
)

// ValidateTitle applies the outright-rejection rules: too short, too long,
// a known non-title label, raw markup artifacts, or a location-only line.
func ValidateTitle(title string) bool {
	t := cleanText(title)
	if len(t) < 5 || len(t) > 200 {
		return false
	}
	if knownNonTitles[strings.ToLower(t)] {
		return false
	}
	if markupArtifactRe.MatchString(t) {
		return false
	}
	if locationOnlyRe.MatchString(t) {
		return false
	}
	return true
}

// Scorer assigns confidence scores to raw candidates. Now is injectable
// for tests; nil means time.Now.
type Scorer struct {
	Now func() time.Time
}

func (s *Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Score derives a ScoredEvent from a RawCandidate. The score is built from
// field-completeness bonuses and spam penalties, clamped to [0,100].
func (s *Scorer) Score(c RawCandidate) ScoredEvent {
	ev := ScoredEvent{RawCandidate: c}
	ev.ValidTitle = ValidateTitle(c.Title)

	score := 0
	if ev.ValidTitle {
		score += pointsValidTitle
	} else if cleanText(c.Title) != "" {
		score += pointsPartialTitle
	}

	ref := s.now()
	if t, ok := NormalizeDate(c.StartText, ref); ok {
		ev.NormalizedStart = &t
		today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		eventDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if !eventDay.Before(today) {
			score += pointsFutureDate
		} else {
			score += pointsPastDate
		}
	}

	if cleanText(c.LocationText) != "" {
		score += pointsLocation
	}

	descLen := len(cleanText(c.Description))
	if descLen > 50 {
		score += pointsLongDesc
	} else if descLen > 10 {
		score += pointsShortDesc
	}

	if isAbsoluteURL(c.SourceURL) {
		score += pointsURL
	}

	minor := 0
	if c.ImageURL != "" {
		minor += pointsImage
	}
	if cleanText(c.PriceText) != "" {
		minor += pointsPrice
	}
	if cleanText(c.Category) != "" {
		minor += pointsCategory
	}
	if minor > 5 {
		minor = 5
	}
	score += minor

	// Hand-verified and publisher-declared extractions carry extra trust.
	if c.Method == MethodStructured || c.Method == MethodSiteSpecific {
		score += pointsTrustedMethod
	}

	score -= spamPenalty * countSpamMatches(c.Title+" "+c.Description)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	ev.ConfidenceScore = score

	return ev
}

func countSpamMatches(text string) int {
	lower := strings.ToLower(text)
	matches := 0
	for _, term := range spamTerms {
		if strings.Contains(lower, term) {
			matches++
		}
	}
	return matches
}
