package domain

import "time"

// SessionState is the lifecycle state of a live transcription session.
// Uninitialized -> Active -> Ended, no re-entry.
type SessionState int

const (
	// SessionUninitialized means no session record exists yet.
	SessionUninitialized SessionState = iota
	// SessionActive means the session accepts audio chunks.
	SessionActive
	// SessionEnded is terminal.
	SessionEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionEnded:
		return "ended"
	default:
		return "uninitialized"
	}
}

// SessionMode selects the transcription engine for a session's lifetime.
type SessionMode string

const (
	// ModeStandard pins the batch engine.
	ModeStandard SessionMode = "standard"
	// ModeAssistant allocates a dedicated streaming recognizer.
	ModeAssistant SessionMode = "ai_assistant"
)

// TranscriptionUpdate is emitted for every processed audio chunk, whether the
// quality gate passed or rejected the recognized text.
type TranscriptionUpdate struct {
	SessionID      string       `json:"session_id"`
	Transcription  string       `json:"transcription"`
	FullTranscript string       `json:"full_transcript"`
	Confidence     float64      `json:"confidence"`
	IsFinal        bool         `json:"is_final"`
	Engine         string       `json:"engine"`
	Timestamp      time.Time    `json:"timestamp"`
	Suggestions    []Suggestion `json:"suggestions"`
	// Error annotates a transient failure; the session stays active.
	Error string `json:"error,omitempty"`
}

// SessionSummary is returned when a session ends. Ending an unknown or
// already-ended session yields the zero value.
type SessionSummary struct {
	SessionID        string        `json:"session_id"`
	FinalTranscript  string        `json:"final_transcript"`
	Duration         time.Duration `json:"duration"`
	TotalSuggestions int           `json:"total_suggestions"`
}

// SessionData is a point-in-time snapshot of a live session.
type SessionData struct {
	SessionID      string       `json:"session_id"`
	State          string       `json:"state"`
	Mode           SessionMode  `json:"mode"`
	Engine         string       `json:"engine"`
	FullTranscript string       `json:"full_transcript"`
	LastUpdate     time.Time    `json:"last_update"`
	Suggestions    []Suggestion `json:"suggestions"`
}
