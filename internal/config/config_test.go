package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, DefaultEmbedBatchSize, cfg.Embedding.BatchSize)
	assert.Equal(t, DefaultUpsertBatchSize, cfg.Vector.UpsertBatchSize)
	assert.Equal(t, DefaultCollectionPrefix, cfg.Vector.CollectionPrefix)
	assert.Equal(t, DefaultChunkSize, cfg.Indexing.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, DefaultCycleSourceLimit, cfg.Indexing.CycleSourceLimit)
	assert.Equal(t, time.Hour, cfg.Indexing.IntervalDuration())
	assert.Equal(t, 5*time.Second, cfg.Indexing.ProbeDelayDuration())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, cfg.Indexing.ChunkSize)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embedding:
  provider: static
  batch_size: 8
vector:
  collection_prefix: tenant_
  upsert_batch_size: 10
indexing:
  interval: 15m
  chunk_size: 256
  chunk_overlap: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, "tenant_", cfg.Vector.CollectionPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Indexing.IntervalDuration())
	assert.Equal(t, 256, cfg.Indexing.ChunkSize)
	// Untouched values keep defaults
	assert.Equal(t, "localhost", cfg.Vector.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  model: from-file\n"), 0o644))

	t.Setenv("KBINDEXD_EMBEDDING_MODEL", "from-env")
	t.Setenv("KBINDEXD_VECTOR_PORT", "7443")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Embedding.Model)
	assert.Equal(t, 7443, cfg.Vector.Port)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "magic" }},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"zero upsert batch", func(c *Config) { c.Vector.UpsertBatchSize = 0 }},
		{"empty prefix", func(c *Config) { c.Vector.CollectionPrefix = "" }},
		{"overlap >= chunk size", func(c *Config) { c.Indexing.ChunkOverlap = c.Indexing.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Indexing.ChunkOverlap = -1 }},
		{"zero source limit", func(c *Config) { c.Indexing.CycleSourceLimit = 0 }},
		{"zero probe attempts", func(c *Config) { c.Indexing.ProbeAttempts = 0 }},
		{"bad interval", func(c *Config) { c.Indexing.Interval = "often" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCatalogPath_DerivedFromDataDir(t *testing.T) {
	cfg := NewConfig()
	cfg.DataDir = "/var/lib/kbindexd"

	assert.Equal(t, filepath.Join("/var/lib/kbindexd", "catalog.db"), cfg.CatalogPath())

	cfg.Catalog.Path = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.CatalogPath())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := NewConfig()
	cfg.Embedding.Model = "round-trip"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip", loaded.Embedding.Model)
}

func TestDurationAccessors_FallBackOnGarbage(t *testing.T) {
	ic := IndexingConfig{Interval: "soon", ProbeDelay: "", ErrorBackoff: "-5s"}

	assert.Equal(t, time.Hour, ic.IntervalDuration())
	assert.Equal(t, 5*time.Second, ic.ProbeDelayDuration())
	assert.Equal(t, time.Minute, ic.ErrorBackoffDuration())
}
