// Package health tracks service readiness.
package health

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the health gates.
type Snapshot struct {
	Healthy     bool      `json:"healthy"`
	EmbedderOK  bool      `json:"embedder_ok"`
	StoreOK     bool      `json:"vector_store_ok"`
	LoopRunning bool      `json:"indexer_running"`
	CheckedAt   time.Time `json:"checked_at"`
}

// State holds the three gates the service reports readiness from: the
// embedder, the vector store, and the indexing loop itself. All gates
// must be up for the service to count as healthy.
type State struct {
	mu          sync.RWMutex
	embedderOK  bool
	storeOK     bool
	loopRunning bool
	checkedAt   time.Time
}

func NewState() *State {
	return &State{}
}

func (s *State) SetEmbedderOK(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedderOK = ok
	s.checkedAt = time.Now()
}

func (s *State) SetStoreOK(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeOK = ok
	s.checkedAt = time.Now()
}

func (s *State) SetLoopRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopRunning = running
	s.checkedAt = time.Now()
}

// Healthy reports whether all gates are up.
func (s *State) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedderOK && s.storeOK && s.loopRunning
}

// Snapshot returns a consistent copy of all gates.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Healthy:     s.embedderOK && s.storeOK && s.loopRunning,
		EmbedderOK:  s.embedderOK,
		StoreOK:     s.storeOK,
		LoopRunning: s.loopRunning,
		CheckedAt:   s.checkedAt,
	}
}
