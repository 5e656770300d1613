package ingest

import (
	"testing"
)

func TestStructuredDataExtractor(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{
	  "@context": "https://schema.org",
	  "@type": "MusicEvent",
	  "name": "Jazz Night",
	  "startDate": "2026-06-14T19:30:00",
	  "description": "An evening of live jazz.",
	  "url": "https://venue.example.com/jazz-night",
	  "image": "https://venue.example.com/jazz.jpg",
	  "location": {"@type": "Place", "name": "The Blue Room", "address": {"streetAddress": "12 Bay St", "addressLocality": "Harborview"}},
	  "offers": {"@type": "Offer", "price": 0}
	}
	</script></head><body></body></html>`

	e := &StructuredDataExtractor{}
	cands := e.Extract(html, "https://venue.example.com/events")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}

	c := cands[0]
	if c.Title != "Jazz Night" {
		t.Errorf("title = %q", c.Title)
	}
	if c.StartText != "2026-06-14T19:30:00" {
		t.Errorf("start = %q", c.StartText)
	}
	if c.LocationText != "The Blue Room, 12 Bay St, Harborview" {
		t.Errorf("location = %q", c.LocationText)
	}
	if c.PriceText != "Free" {
		t.Errorf("price = %q, want Free for a zero offer", c.PriceText)
	}
	if c.SourceURL != "https://venue.example.com/jazz-night" {
		t.Errorf("source url = %q", c.SourceURL)
	}
	if c.Method != MethodStructured {
		t.Errorf("method = %s", c.Method)
	}
}

func TestStructuredDataExtractorGraphAndNoise(t *testing.T) {
	html := `<html><head>
	<script type="application/ld+json">{"@graph":[
	  {"@type":"Organization","name":"The Venue"},
	  {"@type":"Event","name":"Open Mic Monday","startDate":"2026-04-06"}
	]}</script>
	<script type="application/ld+json">not valid json at all</script>
	<script type="application/ld+json">{"@type":"Article","name":"Not an event"}</script>
	</head><body></body></html>`

	e := &StructuredDataExtractor{}
	cands := e.Extract(html, "https://venue.example.com/events")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Title != "Open Mic Monday" {
		t.Errorf("title = %q", cands[0].Title)
	}
}

func TestMicrodataExtractor(t *testing.T) {
	html := `<html><body>
	<div itemscope itemtype="https://schema.org/Event">
	  <h2 itemprop="name">Pottery Workshop</h2>
	  <time itemprop="startDate" datetime="2026-05-02T10:00:00">May 2</time>
	  <div itemprop="location" itemscope itemtype="https://schema.org/Place">
	    <span itemprop="name">Clay Studio</span>
	  </div>
	</div>
	<div itemscope itemtype="https://schema.org/Product"><span itemprop="name">Mug</span></div>
	</body></html>`

	e := &MicrodataExtractor{}
	cands := e.Extract(html, "https://studio.example.com/classes")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	c := cands[0]
	if c.Title != "Pottery Workshop" {
		t.Errorf("title = %q", c.Title)
	}
	if c.StartText != "2026-05-02T10:00:00" {
		t.Errorf("start = %q, want the datetime attribute", c.StartText)
	}
	if c.LocationText != "Clay Studio" {
		t.Errorf("location = %q", c.LocationText)
	}
}

func TestCSSHeuristicExtractor(t *testing.T) {
	html := `<html><body>
	<div class="event-card">
	  <h3>Trivia Night</h3>
	  <span class="date">April 2, 2026</span>
	  <span class="venue">Corner Pub</span>
	  <a href="/events/trivia?utm_source=banner">details</a>
	</div>
	<div class="event-card">
	  <h3>Ad</h3>
	</div>
	</body></html>`

	e := &CSSHeuristicExtractor{}
	cands := e.Extract(html, "https://pub.example.com/whats-on")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 (the two-word ad has no date and no keyword)", len(cands))
	}
	c := cands[0]
	if c.Title != "Trivia Night" {
		t.Errorf("title = %q", c.Title)
	}
	if c.StartText != "April 2, 2026" {
		t.Errorf("start = %q", c.StartText)
	}
	if c.SourceURL != "https://pub.example.com/events/trivia" {
		t.Errorf("source url = %q, want resolved and canonicalized link", c.SourceURL)
	}
}

func TestCSSHeuristicExtractorOverrides(t *testing.T) {
	html := `<html><body>
	<section class="gig">
	  <p class="gig-name">Acoustic Evening Session</p>
	  <p class="gig-when">May 9, 2026</p>
	</section>
	</body></html>`

	e := &CSSHeuristicExtractor{Overrides: SelectorOverrides{
		"container": {"section.gig"},
		"title":     {"p.gig-name"},
		"date":      {"p.gig-when"},
	}}
	cands := e.Extract(html, "https://bar.example.com/gigs")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Title != "Acoustic Evening Session" {
		t.Errorf("title = %q", cands[0].Title)
	}
	if cands[0].StartText != "May 9, 2026" {
		t.Errorf("start = %q", cands[0].StartText)
	}
}

// A syntactically broken override is dropped; the defaults still work.
func TestCSSHeuristicExtractorInvalidOverride(t *testing.T) {
	html := `<html><body>
	<div class="event-card">
	  <h3>Harbor Concert Series</h3>
	  <span class="date">July 4, 2026</span>
	</div>
	</body></html>`

	e := &CSSHeuristicExtractor{Overrides: SelectorOverrides{
		"container": {"[[[broken"},
	}}
	cands := e.Extract(html, "https://city.example.com/events")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 via default selectors", len(cands))
	}
}

func TestSiteSpecificExtractor(t *testing.T) {
	registry := NewSiteRegistry([]SiteRule{{
		DomainSubstring: "downtownalliance.org",
		Events: []KnownEvent{
			{TitlePhrase: "Summer Night Market", DatePhrase: "July 12, 2026", Location: "Main Street Plaza", Price: "Free"},
			{TitlePhrase: "Winter Lights Festival", DatePhrase: "December 5, 2026"},
		},
	}})
	e := &SiteSpecificExtractor{Registry: registry}

	html := `<html><body>
	<h1>What's On</h1>
	<p>Join us for the Summer Night Market on July 12, 2026 at Main Street Plaza.</p>
	<p>Winter Lights Festival details coming soon.</p>
	</body></html>`

	cands := e.Extract(html, "https://www.downtownalliance.org/whats-on")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 (festival has no date phrase on page)", len(cands))
	}
	if cands[0].Title != "Summer Night Market" {
		t.Errorf("title = %q", cands[0].Title)
	}
	if cands[0].Method != MethodSiteSpecific {
		t.Errorf("method = %s", cands[0].Method)
	}

	if got := e.Extract(html, "https://other.example.com/"); got != nil {
		t.Errorf("unknown domain should yield nothing, got %d", len(got))
	}
}

func TestTextMiningExtractor(t *testing.T) {
	html := `<html><body>
	<nav>Events Calendar Home About</nav>
	<p>SPRING CRAFT FAIR</p>
	<p>Saturday, April 18, 2026</p>
	<p>Some filler text about the organizers that goes on for a while.</p>
	<p>lowercase concert mention without capitals anywhere near a date</p>
	</body></html>`

	e := &TextMiningExtractor{}
	cands := e.Extract(html, "https://town.example.com/")
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Title != "SPRING CRAFT FAIR" {
		t.Errorf("title = %q", cands[0].Title)
	}
	if cands[0].StartText != "Saturday, April 18, 2026" {
		t.Errorf("start = %q", cands[0].StartText)
	}
}

func TestTextMiningExtractorCapsResults(t *testing.T) {
	body := ""
	for i := 0; i < 10; i++ {
		body += "<p>COMMUNITY CONCERT SERIES " + string(rune('A'+i)) + "</p>\n<p>June 1, 2026</p>\n"
	}
	html := "<html><body>\n" + body + "</body></html>"

	e := &TextMiningExtractor{}
	cands := e.Extract(html, "https://town.example.com/")
	if len(cands) != maxTextMiningResults {
		t.Errorf("got %d candidates, cap is %d", len(cands), maxTextMiningResults)
	}
}
