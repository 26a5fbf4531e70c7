package catalog

import (
	"context"
	"time"

	errs "github.com/kbforge/kbindexd/internal/errors"
)

// Kind identifies which connector loads a data source.
type Kind string

const (
	KindRelational Kind = "relational"
	KindWeb        Kind = "web"
	KindFile       Kind = "file"
)

// ParseKind validates a source type string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRelational, KindWeb, KindFile:
		return Kind(s), nil
	default:
		return "", errs.New(errs.ErrCodeUnknownSource, "unknown source type", nil).
			WithDetail("source_type", s)
	}
}

// Status is the last recorded indexing outcome for a source.
type Status string

const (
	StatusNone       Status = ""
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusEmpty      Status = "empty"
	StatusNoChunks   Status = "no_chunks"
)

// Indexed reports whether the status stamps last_indexed_at. Only a
// full success counts: empty and no_chunks sources keep a NULL
// timestamp so they stay at the front of the queue and are revisited
// as soon as they gain content, and failed runs are retried early for
// the same reason.
func (s Status) Indexed() bool {
	return s == StatusSuccess
}

// DataSource is one registered knowledge source belonging to a tenant.
type DataSource struct {
	ID            int64
	TenantID      string
	Kind          Kind
	URI           string
	Active        bool
	LastStatus    Status
	LastIndexedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Catalog is the registry of data sources the indexer works from.
type Catalog interface {
	// Add registers a source, or reactivates and updates the existing
	// row when (tenant_id, source_uri) is already known.
	Add(ctx context.Context, tenantID string, kind Kind, uri string) (*DataSource, error)

	// List returns all sources, optionally filtered by tenant.
	List(ctx context.Context, tenantID string) ([]DataSource, error)

	// ListActive returns up to limit active sources ordered so that
	// never-indexed sources come first, then the stalest.
	ListActive(ctx context.Context, tenantID string, limit int) ([]DataSource, error)

	// SetStatus records an indexing state transition.
	SetStatus(ctx context.Context, id int64, status Status) error

	// MarkIndexed records a terminal status and stamps last_indexed_at.
	MarkIndexed(ctx context.Context, id int64, status Status) error

	// Deactivate removes a source from indexing without deleting it.
	Deactivate(ctx context.Context, id int64) error

	// Ping verifies the catalog is reachable.
	Ping(ctx context.Context) error

	Close() error
}
