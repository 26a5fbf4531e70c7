// Package vectorstore persists embedded passages for retrieval.
package vectorstore

import "context"

// Point is one embedded passage ready for storage.
type Point struct {
	// ID is a UUID string. Points get fresh IDs on every write; stale
	// versions are removed by deleting the source's points first.
	ID string

	Vector []float32

	// Payload carries the passage text plus the identifying fields
	// source_uri, source_type and tenant_id.
	Payload map[string]any
}

// Store is the vector database the indexer writes into. Collections
// are per tenant.
type Store interface {
	// EnsureCollection creates the collection with the given vector
	// size if it does not exist, including payload indexes on
	// source_uri and source_type.
	EnsureCollection(ctx context.Context, collection string, dims int) error

	// DeleteBySource removes every point whose payload source_uri
	// matches. Deleting from a missing collection is not an error.
	DeleteBySource(ctx context.Context, collection, sourceURI string) error

	// Upsert writes points into the collection, waiting until the
	// write is durable.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (uint64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
