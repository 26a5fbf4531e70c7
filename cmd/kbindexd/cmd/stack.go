package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kbforge/kbindexd/internal/catalog"
	"github.com/kbforge/kbindexd/internal/chunk"
	"github.com/kbforge/kbindexd/internal/config"
	"github.com/kbforge/kbindexd/internal/embed"
	"github.com/kbforge/kbindexd/internal/health"
	"github.com/kbforge/kbindexd/internal/indexer"
	"github.com/kbforge/kbindexd/internal/logging"
	"github.com/kbforge/kbindexd/internal/source"
	"github.com/kbforge/kbindexd/internal/telemetry"
	"github.com/kbforge/kbindexd/internal/vectorstore"
)

// stack owns the assembled service components and their teardown.
type stack struct {
	cfg    *config.Config
	logger *slog.Logger

	catalog  *catalog.SQLiteCatalog
	metrics  *telemetry.SQLiteMetricsStore
	embedder embed.Embedder
	store    vectorstore.Store
	health   *health.State
	orch     *indexer.Orchestrator

	cleanups []func()
}

// buildStack loads config and assembles the full indexing pipeline.
// toFile controls whether logs go to the rotated file (the daemon) or
// stderr only (one-shot CLI commands).
func buildStack(ctx context.Context, toFile bool) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	if toFile {
		logCfg.FilePath = cfg.LogFilePath()
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg, logger: logger, health: health.NewState()}
	s.cleanups = append(s.cleanups, logCleanup)

	s.catalog, err = catalog.OpenSQLite(cfg.CatalogPath())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, func() { _ = s.catalog.Close() })

	s.metrics, err = telemetry.OpenSQLite(cfg.TelemetryPath())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, func() { _ = s.metrics.Close() })

	s.embedder, err = buildEmbedder(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, func() { _ = s.embedder.Close() })

	s.store, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:   cfg.Vector.Host,
		Port:   cfg.Vector.Port,
		APIKey: cfg.Vector.APIKey,
		UseTLS: cfg.Vector.UseTLS,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, func() { _ = s.store.Close() })

	splitter := chunk.NewSplitter(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap)

	s.orch = indexer.New(indexer.Deps{
		Catalog:    s.catalog,
		Connectors: source.NewRegistry(logger),
		Embedder:   s.embedder,
		Store:      s.store,
		Health:     s.health,
		Metrics:    s.metrics,
		Logger:     logger,
	}, indexer.Config{
		Interval:         cfg.Indexing.IntervalDuration(),
		CycleSourceLimit: cfg.Indexing.CycleSourceLimit,
		EmbedBatchSize:   cfg.Embedding.BatchSize,
		UpsertBatchSize:  cfg.Vector.UpsertBatchSize,
		CollectionPrefix: cfg.Vector.CollectionPrefix,
		ProbeAttempts:    cfg.Indexing.ProbeAttempts,
		ProbeDelay:       cfg.Indexing.ProbeDelayDuration(),
		ErrorBackoff:     cfg.Indexing.ErrorBackoffDuration(),
	}, splitter)

	return s, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Embedding.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	default:
		var err error
		inner, err = embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embedding.Host,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.TimeoutDuration(),
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Embedding.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embedding.CacheSize), nil
	}
	return inner, nil
}

// Close tears the stack down in reverse construction order.
func (s *stack) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}
