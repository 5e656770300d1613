package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mkessler/event-scout/internal/db"
)

func main() {
	source := flag.String("source", "", "Filter runs by source ID")
	limit := flag.Int("limit", 10, "Number of runs to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	runs, err := store.ListRuns(ctx, *source, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "Found", "Admitted", "Dup", "Low Conf", "Flagged", "Past", "Errors", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = time.Duration(r.DurationMs * int64(time.Millisecond)).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			r.SourceID, r.Status, r.Found, r.Admitted, r.SkippedDuplicate,
			r.SkippedLowConfidence, r.FlaggedReview, r.SuppressedPast, r.Errors,
			duration, r.StartedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
