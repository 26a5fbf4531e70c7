// Package source loads raw documents from registered data sources.
//
// Connectors are intentionally forgiving: a source that cannot be read
// logs the problem and yields no documents, so one bad source never
// aborts an indexing cycle.
package source

import (
	"context"
	"log/slog"

	"github.com/kbforge/kbindexd/internal/catalog"
)

// Document is one unit of loadable content before chunking.
type Document struct {
	Content  string
	Metadata map[string]any
}

// Connector reads every document a data source currently holds.
type Connector interface {
	Kind() catalog.Kind

	// Load returns the source's documents. Unreadable sources are
	// reported through the logger and produce an empty slice.
	Load(ctx context.Context, ds catalog.DataSource) []Document
}

// Registry maps source kinds to their connectors.
type Registry struct {
	connectors map[catalog.Kind]Connector
}

// NewRegistry builds the default connector set.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{connectors: make(map[catalog.Kind]Connector)}
	r.Register(NewFileConnector(logger))
	r.Register(NewWebConnector(logger))
	r.Register(NewRelationalConnector(logger))
	return r
}

// NewRegistryWith builds a registry from explicit connectors.
func NewRegistryWith(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[catalog.Kind]Connector)}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Connector) {
	r.connectors[c.Kind()] = c
}

// ForKind returns the connector handling the given kind, or nil when
// the kind is unknown.
func (r *Registry) ForKind(kind catalog.Kind) Connector {
	return r.connectors[kind]
}
