package ingest

import (
	"strings"
	"time"
	"unicode"
)

// fingerprintTitleLen bounds the title part of a fingerprint so trailing
// venue or ticket noise does not split obvious duplicates.
const fingerprintTitleLen = 40

// nearDupThreshold is the Jaccard similarity above which two titles are
// treated as probable duplicates and routed to manual review.
const nearDupThreshold = 0.85

// staleEvidenceWindow is how old every date mention around a candidate has
// to be before the candidate is written off as a past event.
const staleEvidenceWindow = 30 * 24 * time.Hour

var pastEventPhrases = []string{
	"past event",
	"has concluded",
	"has ended",
	"event is over",
	"thanks for attending",
}

// normalizeTitleKey lowercases, strips punctuation, collapses whitespace
// and truncates, producing the stable title half of a fingerprint.
func normalizeTitleKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	key := normalizeSpace(b.String())
	if len(key) > fingerprintTitleLen {
		key = strings.TrimSpace(key[:fingerprintTitleLen])
	}
	return key
}

// ComputeFingerprint derives the identity key used for duplicate
// detection: normalized title plus the day bucket of the start date.
func ComputeFingerprint(ev ScoredEvent) Fingerprint {
	return Fingerprint{
		NormTitle:  normalizeTitleKey(ev.Title),
		DateBucket: dateBucket(ev.NormalizedStart),
	}
}

// jaccard is intersection-over-union of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type storedTitle struct {
	words map[string]struct{}
}

// StoreSnapshot is the already-persisted identity set a run dedupes
// against. The db layer fills it from existing rows before a run starts.
type StoreSnapshot struct {
	exact  map[Fingerprint]bool
	titles []storedTitle
}

func NewStoreSnapshot() *StoreSnapshot {
	return &StoreSnapshot{exact: make(map[Fingerprint]bool)}
}

// Add records one persisted event's identity.
func (s *StoreSnapshot) Add(title, bucket string) {
	s.exact[Fingerprint{NormTitle: normalizeTitleKey(title), DateBucket: bucket}] = true
	if ws := wordSet(title); len(ws) > 0 {
		s.titles = append(s.titles, storedTitle{words: ws})
	}
}

// DedupeResult partitions a run's scored events by the deduplicator's
// verdicts.
type DedupeResult struct {
	Admit          []ScoredEvent
	FlagReview     []ScoredEvent
	SkippedDup     int
	SuppressedPast int
}

// Deduplicator applies within-run and against-store duplicate rules plus
// past-event suppression. Now is injectable for tests; nil means time.Now.
type Deduplicator struct {
	Known *StoreSnapshot
	Now   func() time.Time
}

func (d *Deduplicator) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Filter reduces a run's events to the ones worth persisting. Within the
// run, one event survives per fingerprint: the one from the most trusted
// method, score as tie-breaker. Survivors are then checked against the
// store snapshot, and anything that reads as an already-finished event is
// suppressed outright.
func (d *Deduplicator) Filter(events []ScoredEvent) DedupeResult {
	var res DedupeResult
	ref := d.now()

	best := make(map[Fingerprint]ScoredEvent)
	var order []Fingerprint
	for _, ev := range events {
		fp := ComputeFingerprint(ev)
		cur, seen := best[fp]
		if !seen {
			best[fp] = ev
			order = append(order, fp)
			continue
		}
		res.SkippedDup++
		if betterCandidate(ev, cur) {
			best[fp] = ev
		}
	}

	for _, fp := range order {
		ev := best[fp]

		if d.looksLikePastEvent(ev, ref) {
			res.SuppressedPast++
			continue
		}

		if d.Known != nil {
			if d.Known.exact[fp] {
				res.SkippedDup++
				continue
			}
			if d.nearDuplicateOfStore(ev) {
				res.FlagReview = append(res.FlagReview, ev)
				continue
			}
		}

		res.Admit = append(res.Admit, ev)
	}

	return res
}

// betterCandidate prefers the more trusted extraction method, then the
// higher confidence score.
func betterCandidate(a, b ScoredEvent) bool {
	ta, tb := methodTrust(a.Method), methodTrust(b.Method)
	if ta != tb {
		return ta > tb
	}
	return a.ConfidenceScore > b.ConfidenceScore
}

func (d *Deduplicator) nearDuplicateOfStore(ev ScoredEvent) bool {
	words := wordSet(ev.Title)
	if len(words) == 0 {
		return false
	}
	for _, stored := range d.Known.titles {
		if jaccard(words, stored.words) >= nearDupThreshold {
			return true
		}
	}
	return false
}

// looksLikePastEvent drops candidates whose own text says the event is
// over, or whose every date mention is more than a month stale.
func (d *Deduplicator) looksLikePastEvent(ev ScoredEvent, ref time.Time) bool {
	combined := strings.ToLower(ev.Title + " " + ev.Description + " " + ev.StartText)
	for _, phrase := range pastEventPhrases {
		if strings.Contains(combined, phrase) {
			return true
		}
	}

	tokens := findDateTokens(ev.Title + " " + ev.Description + " " + ev.StartText)
	if len(tokens) == 0 {
		return false
	}
	cutoff := ref.Add(-staleEvidenceWindow)
	for _, t := range tokens {
		if !t.Before(cutoff) {
			return false
		}
	}
	return true
}
