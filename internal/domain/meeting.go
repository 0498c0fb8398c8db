package domain

import (
	"context"
	"time"
)

// Meeting is the read-side projection of a completed meeting. The core never
// writes meetings back; relevance scores attached during a query are transient.
type Meeting struct {
	ID          string
	Title       string
	Transcript  string
	Summary     string
	KeyPoints   []string
	ActionItems []string
	Status      string
	CreatedAt   time.Time
}

// ScoredMeeting pairs a meeting with its relevance for one query.
// Scored is false when the meeting came from the recency fallback.
type ScoredMeeting struct {
	Meeting   Meeting
	Relevance float64
	Scored    bool
}

// MeetingReader provides read access to the meeting archive.
type MeetingReader interface {
	Get(ctx context.Context, id string) (Meeting, error)
	// All returns every meeting sorted by CreatedAt then ID, so callers that
	// iterate it (index rebuild) are deterministic.
	All(ctx context.Context) ([]Meeting, error)
	// Recent returns up to n meetings ordered newest first.
	Recent(ctx context.Context, n int) ([]Meeting, error)
}
