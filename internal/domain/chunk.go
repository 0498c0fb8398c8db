package domain

import "time"

// Chunk is one retrievable unit of meeting text. Chunks are append-only: they
// are created when a meeting is indexed and removed only by a full rebuild.
// Every chunk maps 1:1 to the vector at the same ordinal in the index.
type Chunk struct {
	Text         string    `json:"text"`
	MeetingID    string    `json:"meeting_id"`
	MeetingTitle string    `json:"meeting_title"`
	CreatedAt    time.Time `json:"created_at"`
	// ChunkIndex is the position within the owning meeting's chunk sequence.
	// Stable ordering, not unique across meetings.
	ChunkIndex int `json:"chunk_index"`
}

// ScoredChunk is a search hit: a chunk plus its cosine similarity to the query.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
