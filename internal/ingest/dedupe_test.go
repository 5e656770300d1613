package ingest

import (
	"testing"
	"time"
)

func scoredAt(title string, day string, method ExtractionMethod, score int) ScoredEvent {
	ev := ScoredEvent{
		RawCandidate:    RawCandidate{Title: title, Method: method},
		ConfidenceScore: score,
		ValidTitle:      true,
	}
	if day != "" {
		t, _ := time.Parse("2006-01-02", day)
		ev.NormalizedStart = &t
	}
	return ev
}

func TestFingerprintIgnoresCaseAndPunctuation(t *testing.T) {
	a := ComputeFingerprint(scoredAt("Jazz Night", "2026-06-14", MethodStructured, 90))
	b := ComputeFingerprint(scoredAt("jazz night!!", "2026-06-14", MethodCSSHeuristic, 60))
	if a != b {
		t.Errorf("fingerprints differ: %+v vs %+v", a, b)
	}

	c := ComputeFingerprint(scoredAt("Jazz Night", "2026-06-15", MethodStructured, 90))
	if a == c {
		t.Error("different dates must not share a fingerprint")
	}
}

func TestFingerprintTruncatesLongTitles(t *testing.T) {
	long := "An Extremely Long Event Title That Goes On And On With Venue Details Appended"
	fp := ComputeFingerprint(scoredAt(long, "2026-06-14", MethodStructured, 90))
	if len(fp.NormTitle) > fingerprintTitleLen {
		t.Errorf("norm title length %d exceeds %d", len(fp.NormTitle), fingerprintTitleLen)
	}
}

func TestFilterKeepsMostTrustedWithinRun(t *testing.T) {
	d := &Deduplicator{Now: func() time.Time { return refDate }}

	events := []ScoredEvent{
		scoredAt("Harvest Gala", "2026-10-02", MethodCSSHeuristic, 70),
		scoredAt("Harvest Gala!", "2026-10-02", MethodStructured, 95),
		scoredAt("Harvest Gala", "2026-10-02", MethodTextMining, 55),
	}

	res := d.Filter(events)
	if len(res.Admit) != 1 {
		t.Fatalf("admitted %d, want 1", len(res.Admit))
	}
	if res.Admit[0].Method != MethodStructured {
		t.Errorf("kept %s, want structured", res.Admit[0].Method)
	}
	if res.SkippedDup != 2 {
		t.Errorf("skipped %d, want 2", res.SkippedDup)
	}
}

func TestFilterSkipsExactStoreDuplicate(t *testing.T) {
	known := NewStoreSnapshot()
	known.Add("Jazz Night", "2026-06-14")

	d := &Deduplicator{Known: known, Now: func() time.Time { return refDate }}
	res := d.Filter([]ScoredEvent{scoredAt("jazz night!!", "2026-06-14", MethodStructured, 90)})

	if len(res.Admit) != 0 {
		t.Fatalf("admitted %d, want 0", len(res.Admit))
	}
	if res.SkippedDup != 1 {
		t.Errorf("skipped %d, want 1", res.SkippedDup)
	}
}

func TestFilterFlagsNearDuplicate(t *testing.T) {
	known := NewStoreSnapshot()
	known.Add("Annual Riverside Food and Wine Festival Downtown", "2026-09-05")

	d := &Deduplicator{Known: known, Now: func() time.Time { return refDate }}
	// Same words minus one, different date bucket: not an exact hit but
	// similar enough to need a human decision.
	res := d.Filter([]ScoredEvent{
		scoredAt("Annual Riverside Food and Wine Festival Downtown", "2026-09-06", MethodStructured, 90),
	})

	if len(res.Admit) != 0 {
		t.Fatalf("admitted %d, want 0", len(res.Admit))
	}
	if len(res.FlagReview) != 1 {
		t.Errorf("flagged %d, want 1", len(res.FlagReview))
	}
}

func TestFilterAdmitsDistinctTitles(t *testing.T) {
	known := NewStoreSnapshot()
	known.Add("Jazz Night", "2026-06-14")

	d := &Deduplicator{Known: known, Now: func() time.Time { return refDate }}
	res := d.Filter([]ScoredEvent{scoredAt("Pottery Workshop for Beginners", "2026-06-14", MethodStructured, 90)})

	if len(res.Admit) != 1 {
		t.Errorf("admitted %d, want 1", len(res.Admit))
	}
}

func TestFilterSuppressesPastEvents(t *testing.T) {
	d := &Deduplicator{Now: func() time.Time { return refDate }}

	concluded := scoredAt("Harvest Gala Retrospective", "2026-10-02", MethodStructured, 90)
	concluded.Description = "This past event has concluded. Thanks to all who came!"

	stale := scoredAt("Spring Fair Highlights", "", MethodStructured, 90)
	stale.Description = "Photos from January 5, 2026 and January 6, 2026."

	fresh := scoredAt("Summer Kickoff Party", "2026-06-14", MethodStructured, 90)
	fresh.StartText = "June 14, 2026"

	res := d.Filter([]ScoredEvent{concluded, stale, fresh})
	if res.SuppressedPast != 2 {
		t.Fatalf("suppressed %d, want 2", res.SuppressedPast)
	}
	if len(res.Admit) != 1 || res.Admit[0].Title != "Summer Kickoff Party" {
		t.Errorf("admit = %+v, want only the fresh event", res.Admit)
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("winter lights festival")
	b := wordSet("winter lights festival")
	if got := jaccard(a, b); got != 1.0 {
		t.Errorf("identical sets = %v, want 1.0", got)
	}
	c := wordSet("pottery workshop")
	if got := jaccard(a, c); got != 0 {
		t.Errorf("disjoint sets = %v, want 0", got)
	}
	if got := jaccard(nil, b); got != 0 {
		t.Errorf("empty set = %v, want 0", got)
	}
}
