// Package indexer drives the periodic indexing cycles that keep tenant
// knowledge bases in sync with their registered sources.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbforge/kbindexd/internal/catalog"
	"github.com/kbforge/kbindexd/internal/chunk"
	"github.com/kbforge/kbindexd/internal/embed"
	errs "github.com/kbforge/kbindexd/internal/errors"
	"github.com/kbforge/kbindexd/internal/health"
	"github.com/kbforge/kbindexd/internal/source"
	"github.com/kbforge/kbindexd/internal/telemetry"
	"github.com/kbforge/kbindexd/internal/vectorstore"
)

// ErrBusy is returned when a cycle is requested while one is running.
var ErrBusy = errs.New(errs.ErrCodeCycleBusy, "an indexing cycle is already running", nil)

// Config holds the orchestrator's tunables.
type Config struct {
	// Interval is the pause between automatic cycles.
	Interval time.Duration

	// CycleSourceLimit caps how many sources one cycle processes.
	CycleSourceLimit int

	// EmbedBatchSize is the number of passages sent to the embedder
	// per request.
	EmbedBatchSize int

	// UpsertBatchSize is the number of points written to the vector
	// store per request.
	UpsertBatchSize int

	// CollectionPrefix is prepended to the tenant ID to form the
	// collection name.
	CollectionPrefix string

	// ProbeAttempts and ProbeDelay bound the startup wait for the
	// catalog and vector store.
	ProbeAttempts int
	ProbeDelay    time.Duration

	// ErrorBackoff is the pause after a cycle-level failure.
	ErrorBackoff time.Duration
}

// Deps are the collaborators the orchestrator works through.
type Deps struct {
	Catalog    catalog.Catalog
	Connectors *source.Registry
	Embedder   embed.Embedder
	Store      vectorstore.Store
	Health     *health.State
	Metrics    telemetry.Recorder // optional
	Logger     *slog.Logger
}

// Orchestrator owns the indexing loop: it walks the catalog, loads and
// chunks each source, embeds the passages and overwrites the source's
// points in the tenant collection.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	splitter *chunk.Splitter
	progress *Progress

	// trigger carries at most one pending on-demand request; extra
	// triggers while one is pending coalesce into it.
	trigger chan string

	mu      sync.Mutex
	cycling bool

	wg sync.WaitGroup
}

func New(deps Deps, cfg Config, splitter *chunk.Splitter) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		splitter: splitter,
		progress: NewProgress(),
		trigger:  make(chan string, 1),
	}
}

// Progress returns the progress tracker for the status endpoint.
func (o *Orchestrator) Progress() *Progress {
	return o.progress
}

// Initialize verifies the orchestrator's dependencies before the loop
// starts. An unreachable embedder is fatal immediately: retrying cannot
// fix a missing model. The catalog and vector store get a bounded
// fixed-delay wait, since they may still be coming up alongside us.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if !o.deps.Embedder.Available(ctx) {
		o.deps.Health.SetEmbedderOK(false)
		return errs.New(errs.ErrCodeEmbedderUnavailable,
			"embedding service is not available", nil)
	}
	if o.deps.Embedder.Dimensions() <= 0 {
		o.deps.Health.SetEmbedderOK(false)
		return errs.New(errs.ErrCodeDimensionMismatch,
			"embedder reports no dimensions", nil)
	}
	o.deps.Health.SetEmbedderOK(true)

	probe := errs.FixedRetryConfig(o.cfg.ProbeAttempts, o.cfg.ProbeDelay)

	if err := errs.Retry(ctx, probe, func() error {
		return o.deps.Store.Ping(ctx)
	}); err != nil {
		o.deps.Health.SetStoreOK(false)
		return errs.New(errs.ErrCodeStoreUnavailable,
			"vector store did not become ready", err)
	}
	o.deps.Health.SetStoreOK(true)

	if err := errs.Retry(ctx, probe, func() error {
		return o.deps.Catalog.Ping(ctx)
	}); err != nil {
		return errs.New(errs.ErrCodeCatalogUnavailable,
			"catalog did not become ready", err)
	}

	return nil
}

// Trigger requests an on-demand cycle limited to the given tenant (or
// all tenants when empty). It never blocks; the return value reports
// whether the request was queued or coalesced away.
func (o *Orchestrator) Trigger(tenantID string) bool {
	select {
	case o.trigger <- tenantID:
		return true
	default:
		return false
	}
}

// Run executes the indexing loop until the context is cancelled. One
// cycle runs immediately, then the loop waits for a trigger or the
// interval timer, whichever comes first.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.deps.Health.SetLoopRunning(true)
	defer o.deps.Health.SetLoopRunning(false)

	o.deps.Logger.Info("indexing loop started",
		slog.Duration("interval", o.cfg.Interval))

	o.startCycle(ctx, "")

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			o.deps.Logger.Info("indexing loop stopped")
			return nil
		case tenantID := <-o.trigger:
			o.deps.Logger.Info("cycle triggered",
				slog.String("tenant_id", tenantID))
			o.startCycle(ctx, tenantID)
		case <-time.After(o.cfg.Interval):
			o.startCycle(ctx, "")
		}
	}
}

// RunOnce executes a single cycle synchronously. It is used by the CLI
// and by the admin API when a caller wants the result, not just the
// scheduling.
func (o *Orchestrator) RunOnce(ctx context.Context, tenantID string) error {
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()
	return o.runCycle(ctx, tenantID)
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cycling {
		return false
	}
	o.cycling = true
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.cycling = false
	o.mu.Unlock()
}

// startCycle runs a cycle in the background so the loop keeps
// servicing triggers. A cycle that is already running absorbs the
// request; sources not covered are picked up next time.
func (o *Orchestrator) startCycle(ctx context.Context, tenantID string) {
	if !o.acquire() {
		o.deps.Logger.Debug("cycle already running, skipping")
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release()

		if err := o.runCycle(ctx, tenantID); err != nil {
			o.deps.Logger.Error("indexing cycle failed",
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.ErrorBackoff):
			}
		}
	}()
}

// runCycle processes up to CycleSourceLimit active sources, stalest
// first. Individual source failures are recorded on the source and do
// not abort the cycle.
func (o *Orchestrator) runCycle(ctx context.Context, tenantID string) error {
	start := time.Now()

	sources, err := o.deps.Catalog.ListActive(ctx, tenantID, o.cfg.CycleSourceLimit)
	if err != nil {
		o.progress.EndCycle(err)
		return err
	}

	o.progress.BeginCycle(len(sources))
	o.deps.Logger.Info("indexing cycle started",
		slog.String("tenant_id", tenantID),
		slog.Int("sources", len(sources)))

	for _, ds := range sources {
		if ctx.Err() != nil {
			o.progress.EndCycle(ctx.Err())
			return ctx.Err()
		}
		o.processSource(ctx, ds)
		o.progress.SourceDone()
	}

	o.progress.EndCycle(nil)
	o.recordCycle(time.Since(start), len(sources))

	o.deps.Logger.Info("indexing cycle finished",
		slog.Int("sources", len(sources)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// processSource runs one source through the pipeline: load, chunk,
// embed, then overwrite the source's points in the tenant collection.
func (o *Orchestrator) processSource(ctx context.Context, ds catalog.DataSource) {
	o.progress.SetCurrentSource(ds.URI)

	logger := o.deps.Logger.With(
		slog.String("tenant_id", ds.TenantID),
		slog.String("source_uri", ds.URI),
		slog.String("source_type", string(ds.Kind)))

	if err := o.deps.Catalog.SetStatus(ctx, ds.ID, catalog.StatusInProgress); err != nil {
		logger.Error("failed to mark source in progress",
			slog.String("error", err.Error()))
		return
	}

	status, indexed := o.indexSource(ctx, logger, ds)
	o.finish(ctx, logger, ds, status)

	if indexed > 0 {
		o.progress.AddPassages(indexed)
	}
}

// indexSource does the pipeline work and returns the terminal status
// plus the number of passages written.
func (o *Orchestrator) indexSource(ctx context.Context, logger *slog.Logger, ds catalog.DataSource) (catalog.Status, int) {
	conn := o.deps.Connectors.ForKind(ds.Kind)
	if conn == nil {
		logger.Error("no connector for source type")
		return catalog.StatusFailed, 0
	}

	docs := conn.Load(ctx, ds)
	if len(docs) == 0 {
		logger.Info("source yielded no documents")
		return catalog.StatusEmpty, 0
	}

	type passage struct {
		text string
		meta map[string]any
	}
	var passages []passage
	for _, doc := range docs {
		for _, text := range o.splitter.Split(doc.Content) {
			passages = append(passages, passage{text: text, meta: doc.Metadata})
		}
	}
	if len(passages) == 0 {
		logger.Info("source yielded no passages")
		return catalog.StatusNoChunks, 0
	}

	collection := o.cfg.CollectionPrefix + ds.TenantID
	dims := o.deps.Embedder.Dimensions()
	if err := o.deps.Store.EnsureCollection(ctx, collection, dims); err != nil {
		logger.Error("failed to ensure collection", slog.String("error", err.Error()))
		return catalog.StatusFailed, 0
	}

	// Embed everything before touching the store, so an embedding
	// failure leaves the previous vectors intact.
	vectors := make([][]float32, 0, len(passages))
	for i := 0; i < len(passages); i += o.cfg.EmbedBatchSize {
		end := min(i+o.cfg.EmbedBatchSize, len(passages))
		texts := make([]string, 0, end-i)
		for _, p := range passages[i:end] {
			texts = append(texts, p.text)
		}
		vecs, err := o.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			logger.Error("embedding failed", slog.String("error", err.Error()))
			return catalog.StatusFailed, 0
		}
		vectors = append(vectors, vecs...)
	}

	if err := o.deps.Store.DeleteBySource(ctx, collection, ds.URI); err != nil {
		logger.Error("failed to delete stale points", slog.String("error", err.Error()))
		return catalog.StatusFailed, 0
	}

	points := make([]vectorstore.Point, len(passages))
	for i, p := range passages {
		payload := make(map[string]any, len(p.meta)+5)
		for k, v := range p.meta {
			payload[k] = v
		}
		payload["content"] = p.text
		payload["chunk_index"] = i
		// Identifying fields always come from the catalog entry, never
		// from connector metadata: DeleteBySource matches on them.
		payload["source_uri"] = ds.URI
		payload["source_type"] = string(ds.Kind)
		payload["tenant_id"] = ds.TenantID

		points[i] = vectorstore.Point{
			ID:      uuid.New().String(),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	retry := errs.DefaultRetryConfig()
	for i := 0; i < len(points); i += o.cfg.UpsertBatchSize {
		end := min(i+o.cfg.UpsertBatchSize, len(points))
		batch := points[i:end]
		err := errs.Retry(ctx, retry, func() error {
			return o.deps.Store.Upsert(ctx, collection, batch)
		})
		if err != nil {
			logger.Error("failed to upsert points", slog.String("error", err.Error()))
			return catalog.StatusFailed, i
		}
	}

	logger.Info("source indexed",
		slog.Int("documents", len(docs)),
		slog.Int("passages", len(passages)))

	o.recordCollectionSize(ctx, collection)
	return catalog.StatusSuccess, len(points)
}

// finish records the terminal status. Only a successful pass stamps
// last_indexed_at; every other outcome leaves it untouched so the
// source stays at the front of the next cycle's queue.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, ds catalog.DataSource, status catalog.Status) {
	var err error
	if status.Indexed() {
		err = o.deps.Catalog.MarkIndexed(ctx, ds.ID, status)
	} else {
		err = o.deps.Catalog.SetStatus(ctx, ds.ID, status)
	}
	if err != nil {
		logger.Error("failed to record source status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}

	if o.deps.Metrics != nil {
		if err := o.deps.Metrics.RecordOutcome(ds.TenantID, string(ds.Kind), string(status)); err != nil {
			logger.Warn("failed to record outcome metric",
				slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) recordCycle(elapsed time.Duration, sources int) {
	if o.deps.Metrics == nil {
		return
	}
	if err := o.deps.Metrics.RecordCycle(elapsed, sources); err != nil {
		o.deps.Logger.Warn("failed to record cycle metric",
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) recordCollectionSize(ctx context.Context, collection string) {
	if o.deps.Metrics == nil {
		return
	}
	count, err := o.deps.Store.Count(ctx, collection)
	if err != nil {
		return
	}
	if err := o.deps.Metrics.RecordCollectionSize(collection, count); err != nil {
		o.deps.Logger.Warn("failed to record collection metric",
			slog.String("error", err.Error()))
	}
}

// CollectionName returns the store collection for a tenant.
func (o *Orchestrator) CollectionName(tenantID string) string {
	return fmt.Sprintf("%s%s", o.cfg.CollectionPrefix, tenantID)
}
