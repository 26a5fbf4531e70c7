package catalog

import (
	"context"
	"database/sql"
	"time"

	errs "github.com/kbforge/kbindexd/internal/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schema = `
CREATE TABLE IF NOT EXISTS datasources (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id       TEXT NOT NULL,
	source_type     TEXT NOT NULL,
	source_uri      TEXT NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_status     TEXT NOT NULL DEFAULT '',
	last_indexed_at TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	UNIQUE(tenant_id, source_uri)
);
CREATE INDEX IF NOT EXISTS idx_datasources_active ON datasources(is_active, last_indexed_at);
`

// SQLiteCatalog stores the datasource registry in a local SQLite file.
type SQLiteCatalog struct {
	db *sql.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// OpenSQLite opens (creating if needed) the catalog database at path.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.New(errs.ErrCodeCatalogUnavailable, "open catalog database", err).
			WithDetail("path", path)
	}

	// DSN params may be ignored by modernc.org/sqlite; set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errs.New(errs.ErrCodeCatalogUnavailable, "configure catalog database", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.ErrCodeCatalogUnavailable, "create catalog schema", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

// DB exposes the underlying handle so other stores can share the file.
func (c *SQLiteCatalog) DB() *sql.DB { return c.db }

func (c *SQLiteCatalog) Add(ctx context.Context, tenantID string, kind Kind, uri string) (*DataSource, error) {
	if tenantID == "" || uri == "" {
		return nil, errs.ValidationError("tenant_id and source_uri are required", nil)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	now := timestamp(time.Now())
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO datasources (tenant_id, source_type, source_uri, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(tenant_id, source_uri) DO UPDATE SET
			source_type = excluded.source_type,
			is_active   = 1,
			updated_at  = excluded.updated_at
	`, tenantID, string(kind), uri, now, now)
	if err != nil {
		return nil, errs.CatalogError("register datasource", err)
	}

	return c.getByURI(ctx, tenantID, uri)
}

func (c *SQLiteCatalog) getByURI(ctx context.Context, tenantID, uri string) (*DataSource, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, source_type, source_uri, is_active, last_status,
		       last_indexed_at, created_at, updated_at
		FROM datasources
		WHERE tenant_id = ? AND source_uri = ?
	`, tenantID, uri)

	ds, err := scanDataSource(row)
	if err != nil {
		return nil, errs.CatalogError("load datasource", err)
	}
	return ds, nil
}

func (c *SQLiteCatalog) List(ctx context.Context, tenantID string) ([]DataSource, error) {
	query := `
		SELECT id, tenant_id, source_type, source_uri, is_active, last_status,
		       last_indexed_at, created_at, updated_at
		FROM datasources`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY tenant_id, id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.CatalogError("list datasources", err)
	}
	defer rows.Close()

	return collectDataSources(rows)
}

// ListActive returns the indexing work queue: never-indexed sources
// first, then those with the oldest completed pass.
func (c *SQLiteCatalog) ListActive(ctx context.Context, tenantID string, limit int) ([]DataSource, error) {
	query := `
		SELECT id, tenant_id, source_type, source_uri, is_active, last_status,
		       last_indexed_at, created_at, updated_at
		FROM datasources
		WHERE is_active = 1`
	args := []any{}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += `
		ORDER BY last_indexed_at IS NOT NULL, last_indexed_at ASC, updated_at ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.CatalogError("list active datasources", err)
	}
	defer rows.Close()

	return collectDataSources(rows)
}

func (c *SQLiteCatalog) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE datasources SET last_status = ?, updated_at = ? WHERE id = ?
	`, string(status), timestamp(time.Now()), id)
	if err != nil {
		return errs.CatalogError("update datasource status", err)
	}
	return requireRow(res)
}

func (c *SQLiteCatalog) MarkIndexed(ctx context.Context, id int64, status Status) error {
	now := timestamp(time.Now())
	res, err := c.db.ExecContext(ctx, `
		UPDATE datasources SET last_status = ?, last_indexed_at = ?, updated_at = ? WHERE id = ?
	`, string(status), now, now, id)
	if err != nil {
		return errs.CatalogError("mark datasource indexed", err)
	}
	return requireRow(res)
}

func (c *SQLiteCatalog) Deactivate(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE datasources SET is_active = 0, updated_at = ? WHERE id = ?
	`, timestamp(time.Now()), id)
	if err != nil {
		return errs.CatalogError("deactivate datasource", err)
	}
	return requireRow(res)
}

func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errs.New(errs.ErrCodeCatalogUnavailable, "catalog ping failed", err)
	}
	return nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.CatalogError("check affected rows", err)
	}
	if n == 0 {
		return errs.ValidationError("datasource not found", nil)
	}
	return nil
}

// Timestamps are stored as RFC 3339 strings written from Go, so they
// round-trip without driver-specific TIMESTAMP parsing. The fraction is
// fixed-width so string comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (*DataSource, error) {
	var (
		ds        DataSource
		kind      string
		status    string
		active    int
		indexedAt sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&ds.ID, &ds.TenantID, &kind, &ds.URI, &active, &status,
		&indexedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ds.Kind = Kind(kind)
	ds.LastStatus = Status(status)
	ds.Active = active != 0
	if indexedAt.Valid {
		t := parseTimestamp(indexedAt.String)
		ds.LastIndexedAt = &t
	}
	ds.CreatedAt = parseTimestamp(createdAt)
	ds.UpdatedAt = parseTimestamp(updatedAt)
	return &ds, nil
}

func collectDataSources(rows *sql.Rows) ([]DataSource, error) {
	var out []DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, errs.CatalogError("scan datasource row", err)
		}
		out = append(out, *ds)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.CatalogError("iterate datasource rows", err)
	}
	return out, nil
}
