// Package watcher turns filesystem changes on file-kind sources into
// reindex triggers, so local files are picked up without waiting for
// the next timed cycle.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kbforge/kbindexd/internal/catalog"
	"github.com/kbforge/kbindexd/internal/source"
)

// rescanInterval is how often the watcher re-reads the catalog to pick
// up newly registered file sources.
const rescanInterval = 5 * time.Minute

// TriggerFunc requests a reindex cycle for a tenant.
type TriggerFunc func(tenantID string) bool

// Watcher watches the parent directories of registered file sources
// and triggers the owning tenant's reindex when a source file changes.
type Watcher struct {
	catalog  catalog.Catalog
	trigger  TriggerFunc
	logger   *slog.Logger
	debounce *Debouncer

	fsw *fsnotify.Watcher

	mu           sync.Mutex
	tenantByPath map[string]string
	watchedDirs  map[string]bool
}

func New(cat catalog.Catalog, trigger TriggerFunc, logger *slog.Logger, debounceWindow time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		catalog:      cat,
		trigger:      trigger,
		logger:       logger,
		debounce:     NewDebouncer(debounceWindow),
		fsw:          fsw,
		tenantByPath: make(map[string]string),
		watchedDirs:  make(map[string]bool),
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debounce.Stop()
	defer func() { _ = w.fsw.Close() }()

	w.refresh(ctx)

	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.debounce.Add(filepath.Clean(event.Name))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))

		case paths := <-w.debounce.Output():
			w.dispatch(paths)

		case <-rescan.C:
			w.refresh(ctx)
		}
	}
}

// refresh re-reads the catalog's active file sources and adjusts the
// watched directory set. Watching the parent directory rather than the
// file itself survives the rename-over-save pattern editors use.
func (w *Watcher) refresh(ctx context.Context) {
	all, err := w.catalog.List(ctx, "")
	if err != nil {
		w.logger.Warn("failed to list sources for watching",
			slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.tenantByPath = make(map[string]string)
	wanted := make(map[string]bool)

	for _, ds := range all {
		if !ds.Active || ds.Kind != catalog.KindFile {
			continue
		}
		path := filepath.Clean(source.FilePath(ds.URI))
		w.tenantByPath[path] = ds.TenantID
		wanted[filepath.Dir(path)] = true
	}

	for dir := range wanted {
		if w.watchedDirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			continue
		}
		w.watchedDirs[dir] = true
	}
	for dir := range w.watchedDirs {
		if wanted[dir] {
			continue
		}
		_ = w.fsw.Remove(dir)
		delete(w.watchedDirs, dir)
	}
}

// dispatch maps changed paths to tenants and fires one trigger per
// affected tenant.
func (w *Watcher) dispatch(paths []string) {
	w.mu.Lock()
	tenants := make(map[string]bool)
	for _, path := range paths {
		if tenant, ok := w.tenantByPath[path]; ok {
			tenants[tenant] = true
		}
	}
	w.mu.Unlock()

	for tenant := range tenants {
		queued := w.trigger(tenant)
		w.logger.Info("source file changed, reindex requested",
			slog.String("tenant_id", tenant),
			slog.Bool("queued", queued))
	}
}
