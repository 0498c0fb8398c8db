package index

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// SnapshotStore persists the index state so it survives restarts.
type SnapshotStore interface {
	Save(ctx context.Context, vectors [][]float32, chunks []domain.Chunk) error
	Load(ctx context.Context) (vectors [][]float32, chunks []domain.Chunk, err error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// BatchEmbedder vectorizes document chunks in one call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
