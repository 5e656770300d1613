package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval states an event moves through. Every scraped event starts
// pending; only approved events are publicly visible.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Event is the API-facing shape of a scraped event.
type Event struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	Location         string     `json:"location,omitempty"`
	Price            string     `json:"price,omitempty"`
	URL              string     `json:"url"`
	ImageURL         string     `json:"image_url,omitempty"`
	Category         string     `json:"category,omitempty"`
	SourceID         string     `json:"source_id"`
	ExtractionMethod string     `json:"extraction_method"`
	ConfidenceScore  int        `json:"confidence_score"`
	ApprovalStatus   string     `json:"approval_status"`
	NeedsReview      bool       `json:"needs_review"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ScrapeRun is one recorded pipeline execution for a source.
type ScrapeRun struct {
	ID                   uuid.UUID  `json:"id"`
	SourceID             string     `json:"source_id"`
	Status               string     `json:"status"`
	Found                int        `json:"found"`
	Admitted             int        `json:"admitted"`
	SkippedDuplicate     int        `json:"skipped_duplicate"`
	SkippedLowConfidence int        `json:"skipped_low_confidence"`
	FlaggedReview        int        `json:"flagged_review"`
	SuppressedPast       int        `json:"suppressed_past"`
	Errors               int        `json:"errors"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	DurationMs           int64      `json:"duration_ms"`
}
