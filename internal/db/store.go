package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkessler/event-scout/internal/ingest"
	"github.com/mkessler/event-scout/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertPending writes one admitted event in pending state. The
// uniqueness constraint on (norm_title, date_bucket) turns races between
// concurrent runs into silent no-ops; the return value reports whether a
// row was actually written.
func (s *Store) InsertPending(ctx context.Context, ev ingest.PendingEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO events (
			title, description, start_at, location_name, price_info,
			url, image_url, category, source_id, extraction_method,
			confidence_score, needs_review, norm_title, date_bucket
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14
		)
		ON CONFLICT (norm_title, date_bucket) DO NOTHING
	`,
		ev.Title, nilIfEmpty(ev.Description), ev.StartAt, nilIfEmpty(ev.Location), nilIfEmpty(ev.Price),
		ev.URL, nilIfEmpty(ev.ImageURL), nilIfEmpty(ev.Category), ev.SourceID, string(ev.Method),
		ev.Score, ev.NeedsReview, ev.NormTitle, ev.DateBucket,
	)
	if err != nil {
		return false, fmt.Errorf("insert event failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Snapshot loads the identity set of every stored event for run-time
// deduplication.
func (s *Store) Snapshot(ctx context.Context) (*ingest.StoreSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT title, date_bucket FROM events`)
	if err != nil {
		return nil, fmt.Errorf("snapshot query failed: %w", err)
	}
	defer rows.Close()

	snap := ingest.NewStoreSnapshot()
	for rows.Next() {
		var title, bucket string
		if err := rows.Scan(&title, &bucket); err != nil {
			return nil, fmt.Errorf("snapshot scan failed: %w", err)
		}
		snap.Add(title, bucket)
	}
	return snap, rows.Err()
}

func (s *Store) RecordRun(ctx context.Context, rec ingest.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_runs (
			source_id, status, found, admitted, skipped_duplicate,
			skipped_low_confidence, flagged_review, suppressed_past, errors,
			started_at, completed_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)
	`,
		rec.SourceID, rec.Status, rec.Stats.Found, rec.Stats.Admitted, rec.Stats.SkippedDuplicate,
		rec.Stats.SkippedLowConfidence, rec.Stats.FlaggedReview, rec.Stats.SuppressedPast, rec.Stats.Errors,
		rec.StartedAt, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run failed: %w", err)
	}
	return nil
}

// ListParams filters the public event listing.
type ListParams struct {
	Status   string
	SourceID string
	Category string
	From     *time.Time
	Limit    int
	Offset   int
}

const eventCols = `id, title, COALESCE(description, ''), start_at, COALESCE(location_name, ''),
	COALESCE(price_info, ''), COALESCE(url, ''), COALESCE(image_url, ''), COALESCE(category, ''),
	source_id, extraction_method, confidence_score, approval_status, needs_review, created_at`

func scanEvent(scan func(dest ...any) error) (models.Event, error) {
	var e models.Event
	err := scan(
		&e.ID, &e.Title, &e.Description, &e.StartAt, &e.Location,
		&e.Price, &e.URL, &e.ImageURL, &e.Category,
		&e.SourceID, &e.ExtractionMethod, &e.ConfidenceScore, &e.ApprovalStatus, &e.NeedsReview, &e.CreatedAt,
	)
	return e, err
}

func (s *Store) ListEvents(ctx context.Context, params ListParams) ([]models.Event, error) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	status := params.Status
	if status == "" {
		status = models.StatusApproved
	}
	if status != "all" {
		where += fmt.Sprintf(" AND approval_status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}
	if params.SourceID != "" {
		where += fmt.Sprintf(" AND source_id = $%d", argIdx)
		args = append(args, params.SourceID)
		argIdx++
	}
	if params.Category != "" {
		where += fmt.Sprintf(" AND category ILIKE $%d", argIdx)
		args = append(args, params.Category)
		argIdx++
	}
	if params.From != nil {
		where += fmt.Sprintf(" AND start_at >= $%d", argIdx)
		args = append(args, *params.From)
		argIdx++
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM events %s ORDER BY start_at ASC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d",
		eventCols, where, argIdx, argIdx+1,
	)
	args = append(args, limit, params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events failed: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event failed: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+eventCols+" FROM events WHERE id = $1", id)
	e, err := scanEvent(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event failed: %w", err)
	}
	return &e, nil
}

// PendingEvents returns the approval queue, flagged items first, then
// highest confidence.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+eventCols+` FROM events
		 WHERE approval_status = 'pending'
		 ORDER BY needs_review DESC, confidence_score DESC, created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events failed: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event failed: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetApproval moves a pending event to approved or rejected. Decisions
// are final: a non-pending event is never re-decided.
func (s *Store) SetApproval(ctx context.Context, id uuid.UUID, status string) error {
	if status != models.StatusApproved && status != models.StatusRejected {
		return fmt.Errorf("invalid approval status: %s", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET approval_status = $1, updated_at = NOW()
		WHERE id = $2 AND approval_status = 'pending'
	`, status, id)
	if err != nil {
		return fmt.Errorf("set approval failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, sourceID string, limit int) ([]models.ScrapeRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	query := `
		SELECT id, source_id, status, found, admitted, skipped_duplicate,
		       skipped_low_confidence, flagged_review, suppressed_past, errors,
		       started_at, completed_at, duration_ms
		FROM scrape_runs`
	var args []any
	if sourceID != "" {
		query += " WHERE source_id = $1 ORDER BY started_at DESC LIMIT $2"
		args = []any{sourceID, limit}
	} else {
		query += " ORDER BY started_at DESC LIMIT $1"
		args = []any{limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs failed: %w", err)
	}
	defer rows.Close()

	var out []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		if err := rows.Scan(
			&r.ID, &r.SourceID, &r.Status, &r.Found, &r.Admitted, &r.SkippedDuplicate,
			&r.SkippedLowConfidence, &r.FlaggedReview, &r.SuppressedPast, &r.Errors,
			&r.StartedAt, &r.CompletedAt, &r.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan run failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats aggregates event counts by approval status plus a per-source
// breakdown.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	stats := map[string]any{}

	byStatus := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT approval_status, COUNT(*) FROM events GROUP BY approval_status")
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats scan failed: %w", err)
		}
		byStatus[status] = count
	}
	rows.Close()
	stats["by_status"] = byStatus

	bySource := map[string]int{}
	rows, err = s.pool.Query(ctx, "SELECT source_id, COUNT(*) FROM events GROUP BY source_id")
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats scan failed: %w", err)
		}
		bySource[source] = count
	}
	rows.Close()
	stats["by_source"] = bySource

	return stats, nil
}

// nilIfEmpty stores NULL instead of empty strings.
func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
