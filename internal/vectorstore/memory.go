package vectorstore

import (
	"context"
	"fmt"
	"sync"

	errs "github.com/kbforge/kbindexd/internal/errors"
)

// MemoryStore is an in-process Store used by tests and by deployments
// that only need the pipeline, not persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dims   int
	points map[string]Point
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[collection]; ok {
		if existing.dims != dims {
			return errs.New(errs.ErrCodeDimensionMismatch,
				fmt.Sprintf("collection has %d dimensions, requested %d", existing.dims, dims), nil).
				WithDetail("collection", collection)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{
		dims:   dims,
		points: make(map[string]Point),
	}
	return nil
}

func (s *MemoryStore) DeleteBySource(_ context.Context, collection, sourceURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil
	}
	for id, p := range col.points {
		if p.Payload["source_uri"] == sourceURI {
			delete(col.points, id)
		}
	}
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return errs.StoreError("collection does not exist", nil).
			WithDetail("collection", collection)
	}
	for _, p := range points {
		if len(p.Vector) != col.dims {
			return errs.New(errs.ErrCodeDimensionMismatch,
				fmt.Sprintf("point has %d dimensions, collection expects %d", len(p.Vector), col.dims), nil).
				WithDetail("collection", collection)
		}
		col.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return uint64(len(col.points)), nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// PointsBySource returns the stored points whose payload matches the
// source URI. Test helper.
func (s *MemoryStore) PointsBySource(collection, sourceURI string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil
	}
	var out []Point
	for _, p := range col.points {
		if p.Payload["source_uri"] == sourceURI {
			out = append(out, p)
		}
	}
	return out
}

// Collections lists the collection names currently present.
func (s *MemoryStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	return out
}
