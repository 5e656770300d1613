package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// PendingEvent is the sanitized, persistence-ready form of an admitted
// event.
type PendingEvent struct {
	SourceID    string
	Title       string
	Description string
	StartAt     *time.Time
	Location    string
	Price       string
	URL         string
	ImageURL    string
	Category    string
	Method      ExtractionMethod
	Score       int
	NormTitle   string
	DateBucket  string
	NeedsReview bool
}

// RunRecord describes one finished scrape run for bookkeeping.
type RunRecord struct {
	SourceID  string
	Status    string
	Stats     RunStats
	StartedAt time.Time
	Duration  time.Duration
}

// EventStore is what the pipeline needs from persistence. InsertPending
// reports whether a row was actually written; a false with nil error means
// the store already held an identical event.
type EventStore interface {
	Snapshot(ctx context.Context) (*StoreSnapshot, error)
	InsertPending(ctx context.Context, ev PendingEvent) (bool, error)
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Pipeline wires fetching, extraction, scoring, deduplication and
// persistence together. Store may be nil for dry runs.
type Pipeline struct {
	Fetcher  Fetcher
	Store    EventStore
	Registry *Registry
	Scorer   *Scorer
	Sites    *SiteRegistry

	// Workers bounds concurrent URL fetches per source, clamped to [4,8].
	Workers int

	Now func() time.Time
}

func NewPipeline(fetcher Fetcher, store EventStore, registry *Registry) *Pipeline {
	if fetcher == nil {
		fetcher = NewRetryingFetcher()
	}
	var sites *SiteRegistry
	if registry != nil {
		sites = NewSiteRegistry(registry.SiteRules())
	}
	return &Pipeline{
		Fetcher:  fetcher,
		Store:    store,
		Registry: registry,
		Scorer:   &Scorer{},
		Sites:    sites,
		Workers:  4,
	}
}

func (p *Pipeline) workerCount() int {
	w := p.Workers
	if w < 4 {
		w = 4
	}
	if w > 8 {
		w = 8
	}
	return w
}

// extractorsFor returns the strategy chain for a source, most trusted
// first.
func (p *Pipeline) extractorsFor(src *SourceConfig) []Extractor {
	var overrides SelectorOverrides
	if src != nil && len(src.Selectors) > 0 {
		overrides = SelectorOverrides(src.Selectors)
	}
	return []Extractor{
		&SiteSpecificExtractor{Registry: p.Sites},
		&StructuredDataExtractor{},
		&MicrodataExtractor{},
		&CSSHeuristicExtractor{Overrides: overrides},
		&TextMiningExtractor{},
	}
}

// ExtractPage runs the strategy chain over one page of HTML. Fast mode
// stops at the first strategy that yields anything; thorough mode keeps
// everything from every strategy and lets the deduplicator sort it out.
func (p *Pipeline) ExtractPage(html, url string, src *SourceConfig) []RawCandidate {
	mode := ModeFast
	if src != nil && src.Mode != "" {
		mode = src.Mode
	}

	var out []RawCandidate
	for _, ex := range p.extractorsFor(src) {
		cands := ex.Extract(html, url)
		if len(cands) == 0 {
			continue
		}
		if mode == ModeFast {
			return cands
		}
		out = append(out, cands...)
	}
	return out
}

// candidatesForURL fetches and extracts one page. Any failure, including
// a panic inside an extractor, degrades to zero candidates so one bad
// page never takes down a run.
func (p *Pipeline) candidatesForURL(ctx context.Context, src *SourceConfig, url string) (cands []RawCandidate, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] panic extracting %s: %v", src.ID, url, r)
			cands, failed = nil, true
		}
	}()

	res := p.Fetcher.Fetch(ctx, url)
	if !res.OK {
		log.Printf("[%s] fetch failed for %s (status %d)", src.ID, url, res.StatusCode)
		return nil, true
	}

	cands = p.ExtractPage(res.HTML, url, src)

	if src.FetchFlyers {
		backfillFromFlyers(ctx, p.Fetcher, res.HTML, url, cands)
	}

	return cands, false
}

// backfillFromFlyers fills empty start-date fields from dates found in
// PDF flyers linked off the page.
func backfillFromFlyers(ctx context.Context, fetcher Fetcher, html, pageURL string, cands []RawCandidate) {
	needsDate := false
	for i := range cands {
		if cands[i].StartText == "" {
			needsDate = true
			break
		}
	}
	if !needsDate {
		return
	}

	dates := fetchFlyerDates(ctx, fetcher, html, pageURL)
	if len(dates) == 0 {
		return
	}
	for i := range cands {
		if cands[i].StartText == "" {
			cands[i].StartText = dates[0].Format("2006-01-02")
		}
	}
}

// collect gathers raw candidates for a source across all of its URLs,
// fanned out over a bounded worker pool.
func (p *Pipeline) collect(ctx context.Context, src *SourceConfig) ([]RawCandidate, int) {
	switch src.Strategy {
	case StrategyFeed:
		return p.collectFeed(ctx, src)
	case StrategyListing:
		return p.collectListing(src)
	default:
		return p.collectPages(ctx, src)
	}
}

func (p *Pipeline) collectFeed(ctx context.Context, src *SourceConfig) ([]RawCandidate, int) {
	rss := NewRSSSource(p.Fetcher)
	var out []RawCandidate
	errors := 0
	for _, u := range src.URLs {
		items, err := rss.FetchItems(ctx, u)
		if err != nil {
			log.Printf("[%s] %v", src.ID, err)
			errors++
			continue
		}
		out = append(out, items...)
	}
	return out, errors
}

func (p *Pipeline) collectListing(src *SourceConfig) ([]RawCandidate, int) {
	var overrides SelectorOverrides
	if len(src.Selectors) > 0 {
		overrides = SelectorOverrides(src.Selectors)
	}
	crawler := NewListingCrawler(&CSSHeuristicExtractor{Overrides: overrides})

	var out []RawCandidate
	errors := 0
	for _, u := range src.URLs {
		cands, err := crawler.Crawl(u)
		if err != nil {
			log.Printf("[%s] %v", src.ID, err)
			errors++
			continue
		}
		out = append(out, cands...)
	}
	return out, errors
}

func (p *Pipeline) collectPages(ctx context.Context, src *SourceConfig) ([]RawCandidate, int) {
	type pageResult struct {
		cands  []RawCandidate
		failed bool
	}

	sem := make(chan struct{}, p.workerCount())
	results := make([]pageResult, len(src.URLs))
	var wg sync.WaitGroup

	for i, u := range src.URLs {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			cands, failed := p.candidatesForURL(ctx, src, u)
			results[i] = pageResult{cands: cands, failed: failed}
		}(i, u)
	}
	wg.Wait()

	var out []RawCandidate
	errors := 0
	for _, r := range results {
		out = append(out, r.cands...)
		if r.failed {
			errors++
		}
	}
	return out, errors
}

// RunURL is the dry-run operation: fetch one page, extract and score it,
// nothing persisted. Used by the preview endpoint and by hand.
func (p *Pipeline) RunURL(ctx context.Context, url, mode string) ([]ScoredEvent, error) {
	src := &SourceConfig{ID: "adhoc", Mode: mode}
	cands, failed := p.candidatesForURL(ctx, src, url)
	if failed {
		return nil, fmt.Errorf("fetch or extraction failed for %s", url)
	}

	out := make([]ScoredEvent, 0, len(cands))
	for _, c := range cands {
		out = append(out, p.Scorer.Score(c))
	}
	return out, nil
}

// RunSource executes the full pipeline for one registered source.
func (p *Pipeline) RunSource(ctx context.Context, sourceID string) (RunStats, error) {
	if p.Registry == nil {
		return RunStats{}, fmt.Errorf("no source registry loaded")
	}
	src, err := p.Registry.SourceByID(sourceID)
	if err != nil {
		return RunStats{}, err
	}

	started := p.now()
	log.Printf("[%s] starting run (%s, %s)", src.ID, src.Strategy, src.Mode)

	var stats RunStats
	defer func() {
		p.recordRun(ctx, src.ID, stats, started)
	}()

	var snapshot *StoreSnapshot
	if p.Store != nil {
		snapshot, err = p.Store.Snapshot(ctx)
		if err != nil {
			stats.Errors++
			return stats, fmt.Errorf("store snapshot failed: %w", err)
		}
	}

	cands, fetchErrors := p.collect(ctx, src)
	stats.Errors += fetchErrors
	stats.Found = len(cands)

	scored := make([]ScoredEvent, 0, len(cands))
	for _, c := range cands {
		ev := p.Scorer.Score(c)
		if !ev.ValidTitle || ev.ConfidenceScore < AdmissionThreshold {
			stats.SkippedLowConfidence++
			continue
		}
		scored = append(scored, ev)
	}

	dedup := &Deduplicator{Known: snapshot, Now: p.Now}
	res := dedup.Filter(scored)
	stats.SkippedDuplicate += res.SkippedDup
	stats.SuppressedPast += res.SuppressedPast

	for _, ev := range res.Admit {
		if p.persist(ctx, src.ID, ev, false, &stats) {
			stats.Admitted++
		}
	}
	for _, ev := range res.FlagReview {
		if p.persist(ctx, src.ID, ev, true, &stats) {
			stats.FlaggedReview++
		}
	}

	log.Printf("[%s] run complete: %d found, %d admitted, %d duplicates, %d low-confidence, %d flagged, %d errors",
		src.ID, stats.Found, stats.Admitted, stats.SkippedDuplicate, stats.SkippedLowConfidence, stats.FlaggedReview, stats.Errors)

	return stats, nil
}

// RunAll runs every registered source in turn and returns per-source
// stats. A failing source never stops the others.
func (p *Pipeline) RunAll(ctx context.Context) (map[string]RunStats, error) {
	if p.Registry == nil {
		return nil, fmt.Errorf("no source registry loaded")
	}

	results := make(map[string]RunStats, len(p.Registry.Sources))
	for _, src := range p.Registry.Sources {
		stats, err := p.RunSource(ctx, src.ID)
		if err != nil {
			log.Printf("[%s] run failed: %v", src.ID, err)
			stats.Errors++
		}
		results[src.ID] = stats
	}
	return results, nil
}

// persist sanitizes and writes one admitted event. A clean insert returns
// true; a uniqueness conflict is counted as a duplicate skip, since it
// means a concurrent run got there first.
func (p *Pipeline) persist(ctx context.Context, sourceID string, ev ScoredEvent, needsReview bool, stats *RunStats) bool {
	if p.Store == nil {
		return true
	}

	fp := ComputeFingerprint(ev)
	pending := PendingEvent{
		SourceID:    sourceID,
		Title:       sanitizeUTF8(HTMLToText(ev.Title)),
		Description: sanitizeHTML(sanitizeUTF8(ev.Description)),
		StartAt:     ev.NormalizedStart,
		Location:    sanitizeUTF8(HTMLToText(ev.LocationText)),
		Price:       sanitizeUTF8(cleanText(ev.PriceText)),
		URL:         CanonicalizeURL(ev.SourceURL),
		ImageURL:    ev.ImageURL,
		Category:    sanitizeUTF8(cleanText(ev.Category)),
		Method:      ev.Method,
		Score:       ev.ConfidenceScore,
		NormTitle:   fp.NormTitle,
		DateBucket:  fp.DateBucket,
		NeedsReview: needsReview,
	}

	inserted, err := p.Store.InsertPending(ctx, pending)
	if err != nil {
		log.Printf("[%s] insert failed for %q: %v", sourceID, ev.Title, err)
		stats.Errors++
		return false
	}
	if !inserted {
		stats.SkippedDuplicate++
		return false
	}
	return true
}

func (p *Pipeline) recordRun(ctx context.Context, sourceID string, stats RunStats, started time.Time) {
	if p.Store == nil {
		return
	}
	status := "completed"
	if stats.Errors > 0 && stats.Admitted == 0 && stats.Found > 0 {
		status = "failed"
	}
	rec := RunRecord{
		SourceID:  sourceID,
		Status:    status,
		Stats:     stats,
		StartedAt: started,
		Duration:  p.now().Sub(started),
	}
	if err := p.Store.RecordRun(ctx, rec); err != nil {
		log.Printf("[%s] failed to record run: %v", sourceID, err)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// sanitizeHTML strips unsafe tags and attributes before persistence.
func sanitizeHTML(s string) string {
	return bluemonday.UGCPolicy().Sanitize(s)
}
