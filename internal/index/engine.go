// Package index holds the in-memory vector index over meeting chunks and its
// durable snapshot. Search is exact inner product over unit-normalized
// vectors, which equals cosine similarity.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
	"github.com/meetscribe/meetscribe/internal/metrics"
)

// WriteState reports how far an index mutation got.
type WriteState int

const (
	// WriteRejected means nothing changed, in memory or on disk.
	WriteRejected WriteState = iota
	// WritePartial means the in-memory index mutated but the snapshot write
	// failed. Memory and durable state diverge until the next successful save
	// or rebuild; rebuild is the recovery path.
	WritePartial
	// WriteApplied means both the in-memory index and the snapshot updated.
	WriteApplied
)

// Options is the chunking and retrieval policy for an Engine.
type Options struct {
	ChunkSize           int
	ChunkOverlap        int
	MinChunkChars       int
	SimilarityThreshold float64
}

// Engine owns the vector index and its chunk metadata. The two slices are kept
// length-synchronized: chunk i describes vector i.
type Engine struct {
	mu      sync.RWMutex
	vectors [][]float32
	chunks  []domain.Chunk

	docEmbed   BatchEmbedder
	queryEmbed Embedder
	snapshots  SnapshotStore
	opts       Options
	logger     *zap.Logger
}

// NewEngine creates an index engine. Call Load to restore a prior snapshot.
func NewEngine(
	docEmbed BatchEmbedder,
	queryEmbed Embedder,
	snapshots SnapshotStore,
	opts Options,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		docEmbed:   docEmbed,
		queryEmbed: queryEmbed,
		snapshots:  snapshots,
		opts:       opts,
		logger:     logger,
	}
}

// Load restores index state from the snapshot store. A missing snapshot is not
// an error; the engine starts empty.
func (e *Engine) Load(ctx context.Context) error {
	vectors, chunks, err := e.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if len(vectors) != len(chunks) {
		// Snapshot halves diverged; start empty and wait for a rebuild.
		e.logger.Warn("index snapshot out of sync, starting empty",
			zap.Int("vectors", len(vectors)),
			zap.Int("chunks", len(chunks)),
		)
		return nil
	}

	e.mu.Lock()
	e.vectors = vectors
	e.chunks = chunks
	e.mu.Unlock()

	metrics.IndexChunks.Set(float64(len(chunks)))
	e.logger.Info("index loaded", zap.Int("chunks", len(chunks)))
	return nil
}

// Len returns the number of indexed chunks.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks)
}

// AddMeeting chunks the meeting's transcript, adds one synthetic chunk per
// summary, key point, and action item, embeds everything in a single batch,
// appends vectors and metadata, and persists the snapshot.
func (e *Engine) AddMeeting(ctx context.Context, m domain.Meeting) (WriteState, error) {
	texts := e.meetingChunks(m)
	if len(texts) == 0 {
		return WriteApplied, nil
	}

	res, err := e.docEmbed.BatchEmbed(ctx, texts)
	if err != nil {
		return WriteRejected, fmt.Errorf("embed meeting %s: %w", m.ID, err)
	}
	if len(res.Embeddings) != len(texts) {
		return WriteRejected, fmt.Errorf(
			"embed meeting %s: got %d vectors for %d chunks: %w",
			m.ID, len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError,
		)
	}

	e.mu.Lock()
	for i, text := range texts {
		e.vectors = append(e.vectors, domain.Normalize(res.Embeddings[i]))
		e.chunks = append(e.chunks, domain.Chunk{
			Text:         text,
			MeetingID:    m.ID,
			MeetingTitle: m.Title,
			CreatedAt:    m.CreatedAt,
			ChunkIndex:   i,
		})
	}
	vectors, chunks := e.vectors, e.chunks
	e.mu.Unlock()

	metrics.IndexChunks.Set(float64(len(chunks)))
	e.logger.Info("meeting indexed",
		zap.String("meeting_id", m.ID),
		zap.Int("chunks", len(texts)),
	)

	if err := e.snapshots.Save(ctx, vectors, chunks); err != nil {
		e.logger.Error("index snapshot failed, rebuild required to restore durability",
			zap.String("meeting_id", m.ID),
			zap.Error(err),
		)
		return WritePartial, fmt.Errorf("%w: %w", domain.ErrIndexSnapshotFailed, err)
	}

	return WriteApplied, nil
}

// SearchSimilar embeds the query with the same normalization as stored vectors
// and returns up to topK chunks above the similarity threshold, best first.
// An empty index yields an empty result, not an error.
func (e *Engine) SearchSimilar(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	e.mu.RLock()
	empty := len(e.chunks) == 0
	e.mu.RUnlock()
	if empty {
		return nil, nil
	}

	res, err := e.queryEmbed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := domain.Normalize(res.Embedding)

	e.mu.RLock()
	defer e.mu.RUnlock()

	scored := make([]domain.ScoredChunk, 0, topK)
	for i, v := range e.vectors {
		sim := innerProduct(q, v)
		if sim <= e.opts.SimilarityThreshold {
			continue
		}
		scored = append(scored, domain.ScoredChunk{Chunk: e.chunks[i], Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Rebuild clears the index and re-adds every meeting in a stable order
// (CreatedAt, then ID), so rebuilding an unchanged archive is idempotent.
// This is the only repair path for vector/metadata desynchronization.
func (e *Engine) Rebuild(ctx context.Context, meetings []domain.Meeting) error {
	ordered := make([]domain.Meeting, len(meetings))
	copy(ordered, meetings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	e.mu.Lock()
	e.vectors = nil
	e.chunks = nil
	e.mu.Unlock()
	metrics.IndexChunks.Set(0)

	for _, m := range ordered {
		if _, err := e.AddMeeting(ctx, m); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}

	e.logger.Info("index rebuilt",
		zap.Int("meetings", len(ordered)),
		zap.Int("chunks", e.Len()),
	)
	return nil
}

// meetingChunks produces the texts to index for one meeting: word-window
// chunks of the transcript plus prefixed synthetic chunks for derived content.
func (e *Engine) meetingChunks(m domain.Meeting) []string {
	texts := ChunkText(m.Transcript, e.opts.ChunkSize, e.opts.ChunkOverlap, e.opts.MinChunkChars)

	if m.Summary != "" {
		texts = append(texts, "Summary: "+m.Summary)
	}
	for _, p := range m.KeyPoints {
		texts = append(texts, "Key Point: "+p)
	}
	for _, item := range m.ActionItems {
		texts = append(texts, "Action Item: "+item)
	}
	return texts
}

func innerProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
