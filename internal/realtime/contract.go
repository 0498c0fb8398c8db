package realtime

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// Searcher retrieves index chunks similar to an utterance (ISP).
type Searcher interface {
	SearchSimilar(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// Gate filters recognized text before it reaches the transcript.
type Gate interface {
	Inspect(text string) (ruleName string, rejected bool)
}

// Converter prepares browser audio for the engines.
type Converter interface {
	// ToPCM converts a compressed chunk to raw mono PCM at the given rate.
	ToPCM(ctx context.Context, audio []byte, sampleRate int) ([]byte, error)
	// SpoolFile writes a chunk to disk for the batch engine.
	SpoolFile(audio []byte) (string, error)
}
