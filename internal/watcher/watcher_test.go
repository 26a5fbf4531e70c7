package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbindexd/internal/catalog"
)

func TestDebouncer_CoalescesPaths(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add("/a")
	d.Add("/a")
	d.Add("/b")
	d.Add("/a")

	select {
	case batch := <-d.Output():
		assert.ElementsMatch(t, []string{"/a", "/b"}, batch)
	case <-time.After(time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncer_WindowResetsOnActivity(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add("/a")
	time.Sleep(30 * time.Millisecond)
	d.Add("/a")

	// The first window was pushed out, so nothing has flushed yet.
	select {
	case <-d.Output():
		t.Fatal("flushed before window elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case batch := <-d.Output():
		assert.Equal(t, []string{"/a"}, batch)
	case <-time.After(time.Second):
		t.Fatal("no batch emitted")
	}
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Add("/a")
	d.Stop()
	d.Stop()
	d.Add("/ignored")
}

type triggerRecorder struct {
	mu      sync.Mutex
	tenants []string
}

func (r *triggerRecorder) trigger(tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
	return true
}

func (r *triggerRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tenants...)
}

func TestWatcher_TriggersTenantOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	cat, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()
	_, err = cat.Add(context.Background(), "tenant-a", catalog.KindFile, "file://"+path)
	require.NoError(t, err)

	rec := &triggerRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(cat, rec.trigger, logger, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2 changed"), 0o644))

	require.Eventually(t, func() bool {
		for _, tenant := range rec.seen() {
			if tenant == "tenant-a" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "kb.txt")
	unrelated := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(watched, []byte("v1"), 0o644))

	cat, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()
	_, err = cat.Add(context.Background(), "tenant-a", catalog.KindFile, "file://"+watched)
	require.NoError(t, err)

	rec := &triggerRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(cat, rec.trigger, logger, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(unrelated, []byte("noise"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Empty(t, rec.seen())

	cancel()
	require.NoError(t, <-done)
}
