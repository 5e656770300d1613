package ingest

import (
	"testing"
	"time"
)

func fixedScorer() *Scorer {
	return &Scorer{Now: func() time.Time { return refDate }}
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"normal title", "Jazz Night at the Blue Room", true},
		{"too short", "Gig", false},
		{"too long", repeatString("x", 201), false},
		{"label not a title", "Event Date", false},
		{"label events", "Events", false},
		{"label event type", "Event Type", false},
		{"markup artifact", "<script>alert(1)</script>", false},
		{"escaped markup", "Concert &lt;b&gt;tonight&lt;/b&gt;", false},
		{"location only", "1st Floor, Community Center", false},
		{"street address", "42 Main Street, Springfield", false},
		{"empty", "", false},
		{"five chars exactly", "Gala!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTitle(tt.title); got != tt.want {
				t.Errorf("ValidateTitle(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func repeatString(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestScoreBounds(t *testing.T) {
	s := fixedScorer()

	full := RawCandidate{
		Title:        "Summer Music Festival",
		Description:  "A full weekend of live music, food trucks and family activities in the park.",
		StartText:    "June 14, 2026",
		LocationText: "Harbor Park",
		PriceText:    "$25",
		ImageURL:     "https://example.com/poster.jpg",
		Category:     "Music",
		SourceURL:    "https://example.com/events/summer-fest",
		Method:       MethodStructured,
	}
	ev := s.Score(full)
	if ev.ConfidenceScore < 0 || ev.ConfidenceScore > 100 {
		t.Fatalf("score %d out of [0,100]", ev.ConfidenceScore)
	}
	if ev.ConfidenceScore != 100 {
		t.Errorf("fully populated structured event = %d, want clamped 100", ev.ConfidenceScore)
	}

	spammy := RawCandidate{
		Title:       "Best casino poker slots night click here",
		Description: "Buy now! Free money and a jackpot, work from home!",
		Method:      MethodTextMining,
	}
	ev = s.Score(spammy)
	if ev.ConfidenceScore != 0 {
		t.Errorf("spam-saturated candidate = %d, want clamped 0", ev.ConfidenceScore)
	}
}

// Adding a field can only raise the score, all else equal.
func TestScoreMonotonicity(t *testing.T) {
	s := fixedScorer()
	base := RawCandidate{
		Title:     "Jazz Night at the Blue Room",
		SourceURL: "https://example.com/jazz",
		Method:    MethodCSSHeuristic,
	}

	steps := []func(c *RawCandidate){
		func(c *RawCandidate) { c.StartText = "June 14, 2026" },
		func(c *RawCandidate) { c.LocationText = "The Blue Room" },
		func(c *RawCandidate) {
			c.Description = "An evening of live jazz with the house quartet and guest vocalists."
		},
		func(c *RawCandidate) { c.ImageURL = "https://example.com/jazz.jpg" },
		func(c *RawCandidate) { c.PriceText = "$15" },
	}

	prev := s.Score(base).ConfidenceScore
	for i, step := range steps {
		step(&base)
		cur := s.Score(base).ConfidenceScore
		if cur < prev {
			t.Fatalf("step %d lowered score: %d -> %d", i, prev, cur)
		}
		prev = cur
	}
}

func TestScoreFutureBeatsPastDate(t *testing.T) {
	s := fixedScorer()
	c := RawCandidate{Title: "Spring Concert Series", SourceURL: "https://example.com/e"}

	c.StartText = "June 14, 2026"
	future := s.Score(c)
	c.StartText = "June 14, 2019"
	past := s.Score(c)

	if future.ConfidenceScore <= past.ConfidenceScore {
		t.Errorf("future %d <= past %d", future.ConfidenceScore, past.ConfidenceScore)
	}
	if past.NormalizedStart == nil {
		t.Error("past date should still normalize")
	}
}

// A structured item carrying only a name, a start date and the page URL
// still clears 90: publisher-declared data is trusted.
func TestScoreStructuredGala(t *testing.T) {
	s := fixedScorer()
	ev := s.Score(RawCandidate{
		Title:     "Gala Dinner and Auction",
		StartText: "2026-12-01",
		SourceURL: "https://example.com/events",
		Method:    MethodStructured,
	})

	if !ev.ValidTitle {
		t.Fatal("title should be valid")
	}
	if ev.ConfidenceScore < 90 {
		t.Errorf("score = %d, want >= 90", ev.ConfidenceScore)
	}
	if ev.NormalizedStart == nil || ev.NormalizedStart.Format("2006-01-02") != "2026-12-01" {
		t.Errorf("normalized start = %v, want 2026-12-01", ev.NormalizedStart)
	}
}

func TestScoreInvalidTitleGetsNoTitlePoints(t *testing.T) {
	s := fixedScorer()
	ev := s.Score(RawCandidate{Title: "Event Date", StartText: "June 14, 2026"})
	if ev.ValidTitle {
		t.Fatal("label should not be a valid title")
	}
	valid := s.Score(RawCandidate{Title: "Midsummer Street Fair", StartText: "June 14, 2026"})
	if ev.ConfidenceScore >= valid.ConfidenceScore {
		t.Errorf("invalid title %d >= valid title %d", ev.ConfidenceScore, valid.ConfidenceScore)
	}
}
