package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbindexd/internal/catalog"
	"github.com/kbforge/kbindexd/internal/chunk"
	"github.com/kbforge/kbindexd/internal/embed"
	errs "github.com/kbforge/kbindexd/internal/errors"
	"github.com/kbforge/kbindexd/internal/health"
	"github.com/kbforge/kbindexd/internal/source"
	"github.com/kbforge/kbindexd/internal/vectorstore"
)

func testConfig() Config {
	return Config{
		Interval:         50 * time.Millisecond,
		CycleSourceLimit: 50,
		EmbedBatchSize:   2,
		UpsertBatchSize:  2,
		CollectionPrefix: "kb_",
		ProbeAttempts:    2,
		ProbeDelay:       10 * time.Millisecond,
		ErrorBackoff:     10 * time.Millisecond,
	}
}

type fixture struct {
	catalog *catalog.SQLiteCatalog
	store   *vectorstore.MemoryStore
	health  *health.State
	orch    *Orchestrator
}

func newFixture(t *testing.T, embedder embed.Embedder, registry *source.Registry) *fixture {
	t.Helper()

	cat, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if embedder == nil {
		embedder = embed.NewStaticEmbedder()
	}
	if registry == nil {
		registry = source.NewRegistry(logger)
	}

	store := vectorstore.NewMemoryStore()
	state := health.NewState()

	orch := New(Deps{
		Catalog:    cat,
		Connectors: registry,
		Embedder:   embedder,
		Store:      store,
		Health:     state,
		Logger:     logger,
	}, testConfig(), chunk.NewSplitter(512, 50))

	return &fixture{catalog: cat, store: store, health: state, orch: orch}
}

func (f *fixture) addFileSource(t *testing.T, tenantID, content string) *catalog.DataSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	ds, err := f.catalog.Add(context.Background(), tenantID, catalog.KindFile, "file://"+path)
	require.NoError(t, err)
	return ds
}

func (f *fixture) sourceStatus(t *testing.T, tenantID string, id int64) catalog.DataSource {
	t.Helper()
	all, err := f.catalog.List(context.Background(), tenantID)
	require.NoError(t, err)
	for _, ds := range all {
		if ds.ID == id {
			return ds
		}
	}
	t.Fatalf("source %d not found", id)
	return catalog.DataSource{}
}

type stubConnector struct {
	kind    catalog.Kind
	docs    []source.Document
	release chan struct{}
}

func (c *stubConnector) Kind() catalog.Kind { return c.kind }

func (c *stubConnector) Load(_ context.Context, _ catalog.DataSource) []source.Document {
	if c.release != nil {
		<-c.release
	}
	return c.docs
}

type stubEmbedder struct {
	available bool
	fail      bool
	dims      int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errs.EmbedderError("stub failure", nil)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int                  { return e.dims }
func (e *stubEmbedder) ModelName() string                { return "stub" }
func (e *stubEmbedder) Available(_ context.Context) bool { return e.available }
func (e *stubEmbedder) Close() error                     { return nil }

func TestRunOnce_IndexesFileSource(t *testing.T) {
	f := newFixture(t, nil, nil)
	ds := f.addFileSource(t, "tenant-a", "First paragraph of knowledge.\n\nSecond paragraph of knowledge.")

	require.NoError(t, f.orch.RunOnce(context.Background(), ""))

	got := f.sourceStatus(t, "tenant-a", ds.ID)
	assert.Equal(t, catalog.StatusSuccess, got.LastStatus)
	require.NotNil(t, got.LastIndexedAt)

	points := f.store.PointsBySource("kb_tenant-a", ds.URI)
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.Equal(t, ds.URI, p.Payload["source_uri"])
		assert.Equal(t, "file", p.Payload["source_type"])
		assert.Equal(t, "tenant-a", p.Payload["tenant_id"])
		assert.NotEmpty(t, p.Payload["content"])
		assert.Len(t, p.Vector, embed.StaticDimensions)
	}

	snap := f.orch.Progress().Snapshot()
	assert.Equal(t, int64(1), snap.CyclesCompleted)
	assert.Equal(t, int64(len(points)), snap.PassagesIndexed)
}

func TestRunOnce_OverwriteReplacesPoints(t *testing.T) {
	f := newFixture(t, nil, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("original content here"), 0o644))
	ds, err := f.catalog.Add(context.Background(), "t", catalog.KindFile, "file://"+path)
	require.NoError(t, err)

	require.NoError(t, f.orch.RunOnce(context.Background(), ""))
	require.Len(t, f.store.PointsBySource("kb_t", ds.URI), 1)

	require.NoError(t, os.WriteFile(path, []byte("replacement content instead"), 0o644))
	require.NoError(t, f.orch.RunOnce(context.Background(), ""))

	points := f.store.PointsBySource("kb_t", ds.URI)
	require.Len(t, points, 1)
	assert.Equal(t, "replacement content instead", points[0].Payload["content"])

	n, err := f.store.Count(context.Background(), "kb_t")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestRunOnce_EmptySource(t *testing.T) {
	f := newFixture(t, nil, nil)
	ds := f.addFileSource(t, "t", "   \n\n  ")

	require.NoError(t, f.orch.RunOnce(context.Background(), ""))

	got := f.sourceStatus(t, "t", ds.ID)
	assert.Equal(t, catalog.StatusEmpty, got.LastStatus)
	assert.Nil(t, got.LastIndexedAt)
	assert.Empty(t, f.store.Collections())
}

func TestRunOnce_NoChunks(t *testing.T) {
	registry := source.NewRegistryWith(&stubConnector{
		kind: catalog.KindWeb,
		docs: []source.Document{{Content: "   \n\n\n   "}},
	})

	f := newFixture(t, nil, registry)
	ds, err := f.catalog.Add(context.Background(), "t", catalog.KindWeb, "https://example.com")
	require.NoError(t, err)

	require.NoError(t, f.orch.RunOnce(context.Background(), ""))

	got := f.sourceStatus(t, "t", ds.ID)
	assert.Equal(t, catalog.StatusNoChunks, got.LastStatus)
	assert.Nil(t, got.LastIndexedAt)
}

func TestRunOnce_EmbedderFailureKeepsOldPoints(t *testing.T) {
	embedder := &stubEmbedder{available: true, fail: true, dims: 8}
	f := newFixture(t, embedder, nil)
	ds := f.addFileSource(t, "t", "content that will fail to embed")

	// Previous run's points must survive a failed refresh.
	ctx := context.Background()
	require.NoError(t, f.store.EnsureCollection(ctx, "kb_t", 8))
	require.NoError(t, f.store.Upsert(ctx, "kb_t", []vectorstore.Point{{
		ID:     "11111111-1111-1111-1111-111111111111",
		Vector: make([]float32, 8),
		Payload: map[string]any{
			"source_uri": ds.URI,
			"content":    "old passage",
		},
	}}))

	require.NoError(t, f.orch.RunOnce(ctx, ""))

	got := f.sourceStatus(t, "t", ds.ID)
	assert.Equal(t, catalog.StatusFailed, got.LastStatus)
	assert.Nil(t, got.LastIndexedAt)

	points := f.store.PointsBySource("kb_t", ds.URI)
	require.Len(t, points, 1)
	assert.Equal(t, "old passage", points[0].Payload["content"])
}

func TestRunOnce_MissingConnectorFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := source.NewRegistryWith(source.NewFileConnector(logger))

	f := newFixture(t, nil, registry)
	ds, err := f.catalog.Add(context.Background(), "t", catalog.KindWeb, "https://example.com")
	require.NoError(t, err)

	require.NoError(t, f.orch.RunOnce(context.Background(), ""))

	got := f.sourceStatus(t, "t", ds.ID)
	assert.Equal(t, catalog.StatusFailed, got.LastStatus)
}

func TestRunOnce_TenantFilter(t *testing.T) {
	f := newFixture(t, nil, nil)
	a := f.addFileSource(t, "tenant-a", "tenant a content")
	b := f.addFileSource(t, "tenant-b", "tenant b content")

	require.NoError(t, f.orch.RunOnce(context.Background(), "tenant-a"))

	assert.Equal(t, catalog.StatusSuccess, f.sourceStatus(t, "tenant-a", a.ID).LastStatus)
	assert.Equal(t, catalog.StatusNone, f.sourceStatus(t, "tenant-b", b.ID).LastStatus)
}

func TestRunOnce_Busy(t *testing.T) {
	release := make(chan struct{})
	registry := source.NewRegistryWith(&stubConnector{
		kind:    catalog.KindWeb,
		docs:    []source.Document{{Content: "slow content"}},
		release: release,
	})

	f := newFixture(t, nil, registry)
	_, err := f.catalog.Add(context.Background(), "t", catalog.KindWeb, "https://example.com")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.orch.RunOnce(context.Background(), "") }()

	require.Eventually(t, func() bool {
		return f.orch.Progress().Snapshot().State == string(StateIndexing)
	}, time.Second, 5*time.Millisecond)

	err = f.orch.RunOnce(context.Background(), "")
	assert.True(t, errors.Is(err, ErrBusy))
	// Busy is a transient condition, not bad input from the caller.
	assert.True(t, errs.IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
}

func TestTrigger_Coalesces(t *testing.T) {
	f := newFixture(t, nil, nil)

	assert.True(t, f.orch.Trigger("tenant-a"))
	// The buffer holds one pending request; further triggers coalesce.
	assert.False(t, f.orch.Trigger("tenant-b"))
}

func TestInitialize_HappyPath(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.orch.Initialize(context.Background()))

	snap := f.health.Snapshot()
	assert.True(t, snap.EmbedderOK)
	assert.True(t, snap.StoreOK)
}

func TestInitialize_EmbedderUnavailableIsFatal(t *testing.T) {
	f := newFixture(t, &stubEmbedder{available: false, dims: 8}, nil)

	err := f.orch.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.False(t, f.health.Snapshot().EmbedderOK)
}

func TestRun_LoopProcessesTriggersAndTimer(t *testing.T) {
	f := newFixture(t, nil, nil)
	ds := f.addFileSource(t, "t", "loop content")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.orch.Progress().CyclesCompleted() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.health.Snapshot().LoopRunning)

	before := f.orch.Progress().CyclesCompleted()
	f.orch.Trigger("t")
	require.Eventually(t, func() bool {
		return f.orch.Progress().CyclesCompleted() > before
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, f.health.Snapshot().LoopRunning)
	assert.Equal(t, catalog.StatusSuccess, f.sourceStatus(t, "t", ds.ID).LastStatus)
}
