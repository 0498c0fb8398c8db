// Package snapshot persists the in-memory vector index to a key-value store
// so the engine survives restarts without re-embedding the whole archive.
package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/db"
	"github.com/meetscribe/meetscribe/internal/domain"
)

var (
	vectorsKey = domain.KeyPrefix + "index:vectors"
	chunksKey  = domain.KeyPrefix + "index:chunks"
)

// store is the consumer interface for snapshot persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store writes index snapshots as two keys: a packed float32 blob for the
// vectors and a JSON document for the chunk metadata.
type Store struct {
	kv     store
	logger *zap.Logger
}

func New(kv store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Save replaces the stored snapshot. Vectors are written first so a crash
// between the two writes leaves a length mismatch the loader detects.
func (s *Store) Save(ctx context.Context, vectors [][]float32, chunks []domain.Chunk) error {
	blob, err := packVectors(vectors)
	if err != nil {
		return fmt.Errorf("pack vectors: %w", err)
	}
	meta, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}

	if err := s.kv.Set(ctx, vectorsKey, blob); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := s.kv.Set(ctx, chunksKey, meta); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	s.logger.Debug("index snapshot saved",
		zap.Int("vectors", len(vectors)),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Load returns the stored snapshot. A missing snapshot is an empty index,
// not an error.
func (s *Store) Load(ctx context.Context) ([][]float32, []domain.Chunk, error) {
	blob, err := s.kv.Get(ctx, vectorsKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load vectors: %w", err)
	}
	vectors, err := unpackVectors(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack vectors: %w", err)
	}

	meta, err := s.kv.Get(ctx, chunksKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return vectors, nil, nil
		}
		return nil, nil, fmt.Errorf("load chunks: %w", err)
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(meta, &chunks); err != nil {
		return nil, nil, fmt.Errorf("unmarshal chunks: %w", err)
	}

	return vectors, chunks, nil
}

// packVectors encodes a uniform-dimension matrix as
// [count uint32][dim uint32][count*dim float32], all little-endian.
func packVectors(vectors [][]float32) ([]byte, error) {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	buf := make([]byte, 8, 8+len(vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(dim))

	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dim %d, expected %d", i, len(v), dim)
		}
		for _, f := range v {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
			buf = append(buf, word[:]...)
		}
	}
	return buf, nil
}

func unpackVectors(data []byte) ([][]float32, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("invalid snapshot blob: len=%d", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[0:]))
	dim := int(binary.LittleEndian.Uint32(data[4:]))

	body := data[8:]
	if len(body) != count*dim*4 {
		return nil, fmt.Errorf("invalid snapshot blob: %d bytes for %dx%d", len(body), count, dim)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			off := (i*dim + j) * 4
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
		}
		vectors[i] = v
	}
	return vectors, nil
}
