package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid change notifications for the same path so
// an editor save storm becomes one reindex trigger. Paths seen within
// the window are emitted together as one batch.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	output  chan []string
	stopped bool
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		output:  make(chan []string, 10),
	}
}

// Add records a changed path and (re)schedules the flush.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	d.pending = make(map[string]struct{})

	// Non-blocking send
	select {
	case d.output <- paths:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(paths)))
	}
}

// Output returns the channel of debounced path batches.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call
// multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
