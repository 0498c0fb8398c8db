package meetscribe

import "go.uber.org/zap"

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// ProviderConfig holds the settings of an OpenAI-compatible provider.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Provider   string
	Model      string
	Dimensions int // embedding only
}

type clientConfig struct {
	addrs    []string
	password string

	embedding  ProviderConfig
	generation ProviderConfig

	streamURL  string
	batchURL   string
	batchModel string
	sampleRate int

	chunkSize           int
	chunkOverlap        int
	minChunkChars       int
	similarityThreshold float64

	logger *zap.Logger
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		batchModel:          "whisper-1",
		sampleRate:          16000,
		chunkSize:           200,
		chunkOverlap:        50,
		minChunkChars:       20,
		similarityThreshold: 0.3,
	}
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedding sets the embedding provider. Required.
func WithEmbedding(cfg ProviderConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedding = cfg
	})
}

// WithGeneration sets the text-generation provider used for chat answers and
// live suggestions.
func WithGeneration(cfg ProviderConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.generation = cfg
	})
}

// WithEngines sets the transcription engine endpoints and enables live
// sessions. streamURL is a vosk-server websocket endpoint, batchURL a
// faster-whisper HTTP endpoint.
func WithEngines(streamURL, batchURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.streamURL = streamURL
		c.batchURL = batchURL
	})
}

// WithChunking overrides the transcript chunking geometry.
func WithChunking(size, overlap, minChars int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
		c.minChunkChars = minChars
	})
}

// WithSimilarityThreshold overrides the retrieval noise floor.
func WithSimilarityThreshold(threshold float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.similarityThreshold = threshold
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = logger
	})
}
