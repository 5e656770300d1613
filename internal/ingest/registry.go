package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Source strategies. A page source runs the extraction strategies over
// fetched HTML, a feed source parses RSS/Atom directly, and a listing
// source crawls paginated list pages.
const (
	StrategyPage    = "page"
	StrategyFeed    = "feed"
	StrategyListing = "listing"
)

// Extraction modes for page sources.
const (
	ModeFast     = "fast"
	ModeThorough = "thorough"
)

// Registry holds the configuration for all event sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig defines a single event source.
type SourceConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Strategy string   `yaml:"strategy"`       // "page", "feed", "listing"
	Mode     string   `yaml:"mode,omitempty"` // "fast" (default) or "thorough"
	URLs     []string `yaml:"urls"`
	Schedule string   `yaml:"schedule,omitempty"`

	// Per-field CSS selector overrides for the heuristic extractor.
	Selectors map[string][]string `yaml:"selectors,omitempty"`

	// Hand-verified events for site-specific extraction.
	KnownEvents []KnownEventConfig `yaml:"known_events,omitempty"`

	// Follow linked PDF flyers to backfill missing dates.
	FetchFlyers bool `yaml:"fetch_flyers,omitempty"`
}

// KnownEventConfig is the YAML shape of a hand-verified partner event.
type KnownEventConfig struct {
	Title    string `yaml:"title"`
	Date     string `yaml:"date"`
	Location string `yaml:"location,omitempty"`
	Price    string `yaml:"price,omitempty"`
}

// LoadRegistry reads the embedded sources.yaml. The path parameter is a
// filesystem fallback for local development overrides.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if path != "" {
		if local, localErr := os.ReadFile(path); localErr == nil {
			data, err = local, nil
		}
	}
	if err != nil {
		return nil, err
	}

	// Expand environment variables within the YAML content (e.g. ${TOKEN})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}

	for i := range reg.Sources {
		if reg.Sources[i].Mode == "" {
			reg.Sources[i].Mode = ModeFast
		}
	}

	return &reg, nil
}

// SourceByID returns the source with the given id.
func (r *Registry) SourceByID(id string) (*SourceConfig, error) {
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			return &r.Sources[i], nil
		}
	}
	return nil, fmt.Errorf("unknown source: %s", id)
}

// SiteRules converts every source's hand-verified events into the rule
// set the site-specific extractor consumes, keyed by each URL's domain.
func (r *Registry) SiteRules() []SiteRule {
	var rules []SiteRule
	for _, src := range r.Sources {
		if len(src.KnownEvents) == 0 || len(src.URLs) == 0 {
			continue
		}
		domain := extractDomain(src.URLs[0])
		if domain == "" {
			continue
		}
		events := make([]KnownEvent, 0, len(src.KnownEvents))
		for _, ke := range src.KnownEvents {
			events = append(events, KnownEvent{
				TitlePhrase: ke.Title,
				DatePhrase:  ke.Date,
				Location:    ke.Location,
				Price:       ke.Price,
			})
		}
		rules = append(rules, SiteRule{DomainSubstring: domain, Events: events})
	}
	return rules
}
