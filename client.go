// Package meetscribe embeds the meeting transcription and retrieval stack
// in-process: the vector index, the meeting archive, chat over past meetings,
// and live transcription sessions, without running the HTTP server.
package meetscribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/chat"
	"github.com/meetscribe/meetscribe/internal/db"
	dbRedis "github.com/meetscribe/meetscribe/internal/db/redis"
	"github.com/meetscribe/meetscribe/internal/domain"
	"github.com/meetscribe/meetscribe/internal/index"
	"github.com/meetscribe/meetscribe/internal/media"
	"github.com/meetscribe/meetscribe/internal/quality"
	"github.com/meetscribe/meetscribe/internal/realtime"
	"github.com/meetscribe/meetscribe/internal/repository/embcache"
	meetingrepo "github.com/meetscribe/meetscribe/internal/repository/meeting"
	"github.com/meetscribe/meetscribe/internal/repository/snapshot"
	openaiTransport "github.com/meetscribe/meetscribe/internal/transport/openai"
	"github.com/meetscribe/meetscribe/internal/transport/vosk"
	"github.com/meetscribe/meetscribe/internal/transport/whisper"
)

const defaultReadinessTimeout = 10 * time.Second

// Re-exported domain types so embedders don't import internal packages.
type (
	Meeting             = domain.Meeting
	ScoredChunk         = domain.ScoredChunk
	Suggestion          = domain.Suggestion
	SessionMode         = domain.SessionMode
	SessionSummary      = domain.SessionSummary
	SessionData         = domain.SessionData
	TranscriptionUpdate = domain.TranscriptionUpdate
	ChatResult          = chat.Result
)

// Session modes.
const (
	ModeStandard  = domain.ModeStandard
	ModeAssistant = domain.ModeAssistant
)

// Client is the meetscribe SDK entry point.
type Client struct {
	store    db.Store
	engine   *index.Engine
	meetings *meetingrepo.Repo
	chatSvc  *chat.Service
	manager  *realtime.Manager
}

// New creates a meetscribe Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("meetscribe: database address required (use WithRedis)")
	}
	if cfg.embedding.APIKey == "" && cfg.embedding.BaseURL == "" {
		return nil, errors.New("meetscribe: embedding provider required (use WithEmbedding)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("meetscribe: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("meetscribe: database not ready: %w", err)
	}

	return wireClient(ctx, store, cfg)
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.embedding.APIKey,
		BaseURL:    cfg.embedding.BaseURL,
		Model:      cfg.embedding.Model,
		Dimensions: cfg.embedding.Dimensions,
		Provider:   cfg.embedding.Provider,
		Logger:     logger,
	})
	cached := embcache.New(base, store, nil, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:   cfg.generation.APIKey,
		BaseURL:  cfg.generation.BaseURL,
		Model:    cfg.generation.Model,
		Provider: cfg.generation.Provider,
		Logger:   logger,
	})

	engine := index.NewEngine(cached, cached, snapshot.New(store, logger), index.Options{
		ChunkSize:           cfg.chunkSize,
		ChunkOverlap:        cfg.chunkOverlap,
		MinChunkChars:       cfg.minChunkChars,
		SimilarityThreshold: cfg.similarityThreshold,
	}, logger)
	if err := engine.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("meetscribe: load index snapshot: %w", err)
	}

	meetings := meetingrepo.New(store)

	chatSvc := chat.NewService(engine, meetings, generator, chat.Options{
		SearchTopK:      10,
		RecentFallback:  5,
		ContextMeetings: 5,
		ExcerptChars:    500,
	}, logger)

	var manager *realtime.Manager
	if cfg.streamURL != "" || cfg.batchURL != "" {
		suggester := realtime.NewSuggester(engine, generator, realtime.SuggesterOptions{
			TopK:      3,
			TailChars: 500,
			Window:    5 * time.Second,
			FPChars:   50,
			Timeout:   15 * time.Second,
			PoolSize:  4,
		}, logger)
		manager = realtime.NewManager(
			vosk.NewFactory(cfg.streamURL, 5*time.Second, logger),
			whisper.New(&whisper.Config{
				BaseURL: cfg.batchURL,
				Model:   cfg.batchModel,
				Timeout: time.Minute,
				Logger:  logger,
			}),
			media.NewConverter(os.TempDir(), logger),
			quality.NewValidator(),
			suggester,
			realtime.Options{
				SampleRate:         cfg.sampleRate,
				MinSuggestionConf:  0.5,
				MinSuggestionChars: 6,
			},
			logger,
		)
	}

	return &Client{
		store:    store,
		engine:   engine,
		meetings: meetings,
		chatSvc:  chatSvc,
		manager:  manager,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.ClearAll()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Chat answers a natural-language question about the meeting archive.
func (c *Client) Chat(ctx context.Context, query string) (ChatResult, error) {
	return c.chatSvc.Query(ctx, query)
}

// Search returns index chunks similar to the query.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	return c.engine.SearchSimilar(ctx, query, topK)
}

// IndexMeeting stores a meeting record and adds it to the vector index.
func (c *Client) IndexMeeting(ctx context.Context, m Meeting) error {
	if err := c.meetings.Save(ctx, m); err != nil {
		return fmt.Errorf("save meeting: %w", err)
	}
	if _, err := c.engine.AddMeeting(ctx, m); err != nil {
		return fmt.Errorf("index meeting: %w", err)
	}
	return nil
}

// RebuildIndex re-creates the vector index from the full archive. Returns the
// resulting chunk count.
func (c *Client) RebuildIndex(ctx context.Context) (int, error) {
	all, err := c.meetings.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load meetings: %w", err)
	}
	if err := c.engine.Rebuild(ctx, all); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	return c.engine.Len(), nil
}

// Sessions returns the live session manager, or an error when the client was
// built without engine endpoints.
func (c *Client) Sessions() (*realtime.Manager, error) {
	if c.manager == nil {
		return nil, errors.New("meetscribe: engines not configured (use WithEngines)")
	}
	return c.manager, nil
}
