package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the meetscribe service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Engines    EnginesConfig    `yaml:"engines"`
	Index      IndexConfig      `yaml:"index"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig holds text-generation provider settings.
type GenerationConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EnginesConfig holds transcription engine endpoints.
type EnginesConfig struct {
	StreamURL       string `yaml:"stream_url"`  // vosk-server websocket endpoint
	BatchURL        string `yaml:"batch_url"`   // faster-whisper HTTP endpoint
	BatchModel      string `yaml:"batch_model"` // model name passed to the batch engine
	SampleRate      int    `yaml:"sample_rate"` // raw PCM sample rate for the stream engine
	BatchTimeoutSec int    `yaml:"batch_timeout_sec"`
}

// IndexConfig holds chunking and retrieval policy. The similarity threshold
// and chunk geometry are policy knobs, not fixed truths.
type IndexConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	MinChunkChars       int     `yaml:"min_chunk_chars"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SearchTopK          int     `yaml:"search_top_k"`
}

// RealtimeConfig holds live-session policy.
type RealtimeConfig struct {
	SuggestionWindowSec  int     `yaml:"suggestion_window_sec"`
	SuggestionTopK       int     `yaml:"suggestion_top_k"`
	MinSuggestionConf    float64 `yaml:"min_suggestion_confidence"`
	MinSuggestionChars   int     `yaml:"min_suggestion_chars"`
	TranscriptTailChars  int     `yaml:"transcript_tail_chars"`
	FingerprintChars     int     `yaml:"fingerprint_chars"`
	WorkerPoolSize       int     `yaml:"worker_pool_size"`
	GenerationTimeoutSec int     `yaml:"generation_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// SuggestionWindow returns the per-fingerprint rate-limit window.
func (r RealtimeConfig) SuggestionWindow() time.Duration {
	return time.Duration(r.SuggestionWindowSec) * time.Second
}

// GenerationTimeout returns the per-call generation timeout.
func (r RealtimeConfig) GenerationTimeout() time.Duration {
	return time.Duration(r.GenerationTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Engines.SampleRate <= 0 {
		c.Engines.SampleRate = 16000
	}
	if c.Engines.BatchModel == "" {
		c.Engines.BatchModel = "whisper-1"
	}
	if c.Engines.BatchTimeoutSec <= 0 {
		c.Engines.BatchTimeoutSec = 60
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 30
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = 200
	}
	if c.Index.ChunkOverlap <= 0 {
		c.Index.ChunkOverlap = 50
	}
	if c.Index.MinChunkChars <= 0 {
		c.Index.MinChunkChars = 20
	}
	if c.Index.SimilarityThreshold <= 0 {
		c.Index.SimilarityThreshold = 0.3
	}
	if c.Index.SearchTopK <= 0 {
		c.Index.SearchTopK = 5
	}
	if c.Realtime.SuggestionWindowSec <= 0 {
		c.Realtime.SuggestionWindowSec = 5
	}
	if c.Realtime.SuggestionTopK <= 0 {
		c.Realtime.SuggestionTopK = 3
	}
	if c.Realtime.MinSuggestionConf <= 0 {
		c.Realtime.MinSuggestionConf = 0.5
	}
	if c.Realtime.MinSuggestionChars <= 0 {
		c.Realtime.MinSuggestionChars = 6
	}
	if c.Realtime.TranscriptTailChars <= 0 {
		c.Realtime.TranscriptTailChars = 500
	}
	if c.Realtime.FingerprintChars <= 0 {
		c.Realtime.FingerprintChars = 50
	}
	if c.Realtime.WorkerPoolSize <= 0 {
		c.Realtime.WorkerPoolSize = 4
	}
	if c.Realtime.GenerationTimeoutSec <= 0 {
		c.Realtime.GenerationTimeoutSec = 15
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "meetscribe:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf(
			"index.chunk_overlap (%d) must be smaller than index.chunk_size (%d)",
			c.Index.ChunkOverlap, c.Index.ChunkSize,
		)
	}
	if c.Index.SimilarityThreshold >= 1 {
		return fmt.Errorf(
			"index.similarity_threshold must be below 1, got %f", c.Index.SimilarityThreshold,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
