package domain

import "time"

// Suggestion types the generator is constrained to.
const (
	SuggestionReminder = "reminder"
	SuggestionContext  = "context"
	SuggestionAction   = "action"
	SuggestionQuestion = "question"
)

// SuggestionSource names a prior meeting a suggestion was grounded on.
type SuggestionSource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Suggestion is one contextual hint pushed to a live session.
type Suggestion struct {
	Type       string             `json:"type"`
	Suggestion string             `json:"suggestion"`
	Timestamp  time.Time          `json:"timestamp"`
	Sources    []SuggestionSource `json:"source_meetings,omitempty"`
}
