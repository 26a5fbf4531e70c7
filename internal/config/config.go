// Package config loads and validates the kbindexd configuration.
//
// Configuration is resolved in three layers, later layers winning:
// built-in defaults, a YAML config file, and KBINDEXD_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values. Batch sizes mirror the resource-control limits of
// the indexing pipeline: embedding batches bound peak model memory, upsert
// batches bound request size against the vector store.
const (
	DefaultChunkSize          = 512
	DefaultChunkOverlap       = 50
	DefaultEmbedBatchSize     = 32
	DefaultUpsertBatchSize    = 100
	DefaultCycleSourceLimit   = 50
	DefaultProbeAttempts      = 10
	DefaultCollectionPrefix   = "kb_"
	DefaultIndexingInterval   = "1h"
	DefaultProbeDelay         = "5s"
	DefaultErrorBackoff       = "1m"
	DefaultWatchDebounce      = "2s"
	DefaultEmbeddingTimeout   = "2m"
	DefaultEmbeddingCacheSize = 1000
)

// Config represents the complete kbindexd configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File is the log file path. Empty means stderr only.
	File string `yaml:"file"`
}

// CatalogConfig configures the datasource catalog database.
type CatalogConfig struct {
	// Path is the SQLite database file. Defaults to <data_dir>/catalog.db.
	Path string `yaml:"path"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: "ollama" (default) or "static" (offline).
	Provider string `yaml:"provider"`
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides dimension auto-detection when non-zero.
	Dimensions int `yaml:"dimensions"`
	// BatchSize bounds texts per embedding request.
	BatchSize int `yaml:"batch_size"`
	// Timeout is the per-request timeout (e.g. "2m").
	Timeout string `yaml:"timeout"`
	// CacheSize is the LRU embedding cache capacity (0 disables caching).
	CacheSize int `yaml:"cache_size"`
}

// VectorConfig configures the vector store connection.
type VectorConfig struct {
	// Host is the Qdrant gRPC host.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey authenticates against managed deployments. Optional.
	APIKey string `yaml:"api_key"`
	// UseTLS enables transport security.
	UseTLS bool `yaml:"use_tls"`
	// CollectionPrefix namespaces per-tenant collections.
	CollectionPrefix string `yaml:"collection_prefix"`
	// UpsertBatchSize bounds points per upsert call.
	UpsertBatchSize int `yaml:"upsert_batch_size"`
}

// IndexingConfig configures the indexing loop.
type IndexingConfig struct {
	// Interval between periodic cycles (e.g. "1h").
	Interval string `yaml:"interval"`
	// CycleSourceLimit caps sources processed per cycle.
	CycleSourceLimit int `yaml:"cycle_source_limit"`
	// ChunkSize is the maximum passage size in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the overlap hint for fixed-width fallback splitting.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// ProbeAttempts bounds startup dependency probes.
	ProbeAttempts int `yaml:"probe_attempts"`
	// ProbeDelay is the fixed delay between probe attempts (e.g. "5s").
	ProbeDelay string `yaml:"probe_delay"`
	// ErrorBackoff is the pause after an unexpected loop error (e.g. "1m").
	ErrorBackoff string `yaml:"error_backoff"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":17030". Empty disables the server.
	Addr string `yaml:"addr"`
}

// WatchConfig configures filesystem watching of file-kind sources.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// Debounce is the event coalescing window (e.g. "2s").
	Debounce string `yaml:"debounce"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Log: LogConfig{
			Level: "info",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Host:      "http://localhost:11434",
			Model:     "embeddinggemma",
			BatchSize: DefaultEmbedBatchSize,
			Timeout:   DefaultEmbeddingTimeout,
			CacheSize: DefaultEmbeddingCacheSize,
		},
		Vector: VectorConfig{
			Host:             "localhost",
			Port:             6334,
			CollectionPrefix: DefaultCollectionPrefix,
			UpsertBatchSize:  DefaultUpsertBatchSize,
		},
		Indexing: IndexingConfig{
			Interval:         DefaultIndexingInterval,
			CycleSourceLimit: DefaultCycleSourceLimit,
			ChunkSize:        DefaultChunkSize,
			ChunkOverlap:     DefaultChunkOverlap,
			ProbeAttempts:    DefaultProbeAttempts,
			ProbeDelay:       DefaultProbeDelay,
			ErrorBackoff:     DefaultErrorBackoff,
		},
		Server: ServerConfig{
			Addr: ":17030",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: DefaultWatchDebounce,
		},
	}
}

// defaultDataDir returns ~/.kbindexd, falling back to the working directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbindexd"
	}
	return filepath.Join(home, ".kbindexd")
}

// Load reads configuration from the given path, applying defaults and
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges values from a YAML file into the config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies KBINDEXD_* environment variables.
// Env vars take priority over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBINDEXD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KBINDEXD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KBINDEXD_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("KBINDEXD_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("KBINDEXD_EMBEDDING_HOST"); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv("KBINDEXD_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("KBINDEXD_VECTOR_HOST"); v != "" {
		c.Vector.Host = v
	}
	if v := os.Getenv("KBINDEXD_VECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Vector.Port = port
		}
	}
	if v := os.Getenv("KBINDEXD_VECTOR_API_KEY"); v != "" {
		c.Vector.APIKey = v
	}
	if v := os.Getenv("KBINDEXD_INDEXING_INTERVAL"); v != "" {
		c.Indexing.Interval = v
	}
	if v := os.Getenv("KBINDEXD_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// CatalogPath returns the catalog database path, deriving the default from
// the data directory.
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.DataDir, "catalog.db")
}

// TelemetryPath returns the telemetry database path under the data directory.
func (c *Config) TelemetryPath() string {
	return filepath.Join(c.DataDir, "telemetry.db")
}

// LogFilePath returns the configured log file, defaulting under the data dir.
func (c *Config) LogFilePath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "logs", "kbindexd.log")
}

// IntervalDuration parses the cycle interval.
func (c IndexingConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, mustParse(DefaultIndexingInterval))
}

// ProbeDelayDuration parses the probe delay.
func (c IndexingConfig) ProbeDelayDuration() time.Duration {
	return parseDuration(c.ProbeDelay, mustParse(DefaultProbeDelay))
}

// ErrorBackoffDuration parses the loop error backoff.
func (c IndexingConfig) ErrorBackoffDuration() time.Duration {
	return parseDuration(c.ErrorBackoff, mustParse(DefaultErrorBackoff))
}

// TimeoutDuration parses the embedding request timeout.
func (c EmbeddingConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, mustParse(DefaultEmbeddingTimeout))
}

// DebounceDuration parses the watch debounce window.
func (c WatchConfig) DebounceDuration() time.Duration {
	return parseDuration(c.Debounce, mustParse(DefaultWatchDebounce))
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustParse(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embedding.provider must be \"ollama\" or \"static\", got %q", c.Embedding.Provider)
	}

	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Vector.UpsertBatchSize <= 0 {
		return fmt.Errorf("vector.upsert_batch_size must be positive, got %d", c.Vector.UpsertBatchSize)
	}
	if c.Vector.CollectionPrefix == "" {
		return fmt.Errorf("vector.collection_prefix must not be empty")
	}
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_size), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Indexing.CycleSourceLimit <= 0 {
		return fmt.Errorf("indexing.cycle_source_limit must be positive, got %d", c.Indexing.CycleSourceLimit)
	}
	if c.Indexing.ProbeAttempts <= 0 {
		return fmt.Errorf("indexing.probe_attempts must be positive, got %d", c.Indexing.ProbeAttempts)
	}

	for name, val := range map[string]string{
		"indexing.interval":      c.Indexing.Interval,
		"indexing.probe_delay":   c.Indexing.ProbeDelay,
		"indexing.error_backoff": c.Indexing.ErrorBackoff,
		"embedding.timeout":      c.Embedding.Timeout,
		"watch.debounce":         c.Watch.Debounce,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, val)
		}
	}

	return nil
}

// WriteYAML writes the config to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
