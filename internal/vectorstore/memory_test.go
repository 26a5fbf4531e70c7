package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/kbforge/kbindexd/internal/errors"
)

func point(sourceURI string, dims int) Point {
	vec := make([]float32, dims)
	vec[0] = 1
	return Point{
		ID:     uuid.New().String(),
		Vector: vec,
		Payload: map[string]any{
			"source_uri":  sourceURI,
			"source_type": "file",
			"tenant_id":   "t",
			"content":     "passage",
		},
	}
}

func TestMemoryStore_EnsureCollection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, "kb_tenant", 8))
	// Idempotent for the same size.
	require.NoError(t, s.EnsureCollection(ctx, "kb_tenant", 8))

	err := s.EnsureCollection(ctx, "kb_tenant", 16)
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
}

func TestMemoryStore_UpsertAndCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "kb_t", 8))

	require.NoError(t, s.Upsert(ctx, "kb_t", []Point{
		point("file:///a.txt", 8),
		point("file:///a.txt", 8),
		point("file:///b.txt", 8),
	}))

	n, err := s.Count(ctx, "kb_t")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestMemoryStore_UpsertDimensionCheck(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "kb_t", 8))

	err := s.Upsert(ctx, "kb_t", []Point{point("file:///a.txt", 16)})
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
}

func TestMemoryStore_UpsertMissingCollection(t *testing.T) {
	s := NewMemoryStore()

	err := s.Upsert(context.Background(), "nope", []Point{point("u", 8)})
	assert.Error(t, err)
}

func TestMemoryStore_DeleteBySource(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "kb_t", 8))
	require.NoError(t, s.Upsert(ctx, "kb_t", []Point{
		point("file:///a.txt", 8),
		point("file:///a.txt", 8),
		point("file:///b.txt", 8),
	}))

	require.NoError(t, s.DeleteBySource(ctx, "kb_t", "file:///a.txt"))

	n, err := s.Count(ctx, "kb_t")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.Empty(t, s.PointsBySource("kb_t", "file:///a.txt"))
	assert.Len(t, s.PointsBySource("kb_t", "file:///b.txt"), 1)

	// Deleting from a collection that does not exist is fine.
	assert.NoError(t, s.DeleteBySource(ctx, "missing", "file:///a.txt"))
}

func TestMemoryStore_CountMissingCollection(t *testing.T) {
	s := NewMemoryStore()

	n, err := s.Count(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}
