package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mkessler/event-scout/internal/db"
	"github.com/mkessler/event-scout/internal/ingest"
)

func main() {
	sourceID := flag.String("source", "", "Scrape a single source by ID (default: all registered sources)")
	previewURL := flag.String("url", "", "Dry-run a single URL without persisting anything")
	mode := flag.String("mode", ingest.ModeFast, "Extraction mode for -url: fast or thorough")
	flag.Parse()

	ctx := context.Background()

	registry, err := ingest.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	if *previewURL != "" {
		runPreview(ctx, registry, *previewURL, *mode)
		return
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	pipeline := ingest.NewPipeline(nil, db.NewStore(pool), registry)

	results := map[string]ingest.RunStats{}
	if *sourceID != "" {
		stats, err := pipeline.RunSource(ctx, *sourceID)
		if err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		results[*sourceID] = stats
	} else {
		results, err = pipeline.RunAll(ctx)
		if err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
	}

	renderStats(results)
}

func renderStats(results map[string]ingest.RunStats) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Found", "Admitted", "Dup", "Low Conf", "Flagged", "Past", "Errors"})

	var total ingest.RunStats
	for _, id := range ids {
		s := results[id]
		t.AppendRow(table.Row{id, s.Found, s.Admitted, s.SkippedDuplicate, s.SkippedLowConfidence, s.FlaggedReview, s.SuppressedPast, s.Errors})
		total.Add(s)
	}
	t.AppendFooter(table.Row{"TOTAL", total.Found, total.Admitted, total.SkippedDuplicate, total.SkippedLowConfidence, total.FlaggedReview, total.SuppressedPast, total.Errors})
	t.Render()
}

func runPreview(ctx context.Context, registry *ingest.Registry, url, mode string) {
	pipeline := ingest.NewPipeline(nil, nil, registry)

	events, err := pipeline.RunURL(ctx, url, mode)
	if err != nil {
		log.Fatalf("Preview failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Title", "Date", "Location", "Method", "Score"})
	for _, ev := range events {
		date := ev.StartText
		if ev.NormalizedStart != nil {
			date = ev.NormalizedStart.Format("2006-01-02")
		}
		t.AppendRow(table.Row{ingest.TruncateText(ev.Title, 48), date, ingest.TruncateText(ev.LocationText, 32), ev.Method, ev.ConfidenceScore})
	}
	t.Render()
	log.Printf("%d candidates extracted from %s", len(events), url)
}
