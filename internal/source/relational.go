package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/kbforge/kbindexd/internal/catalog"
	_ "modernc.org/sqlite"
)

// RelationalConnector reads rows out of a SQLite database table. Source
// URIs look like:
//
//	sqlite:/var/data/app.db?table=faq_entries&column=answer
//
// With no column parameter every column of each row is rendered as
// "name: value" lines.
type RelationalConnector struct {
	logger *slog.Logger
}

var _ Connector = (*RelationalConnector)(nil)

func NewRelationalConnector(logger *slog.Logger) *RelationalConnector {
	return &RelationalConnector{logger: logger}
}

func (c *RelationalConnector) Kind() catalog.Kind { return catalog.KindRelational }

// identifiers come from the source URI, not from code, so they are
// validated before being interpolated into SQL.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c *RelationalConnector) Load(ctx context.Context, ds catalog.DataSource) []Document {
	docs, err := c.load(ctx, ds)
	if err != nil {
		c.logger.Warn("relational source unreadable",
			slog.String("tenant_id", ds.TenantID),
			slog.String("source_uri", ds.URI),
			slog.String("error", err.Error()))
		return nil
	}
	return docs
}

func (c *RelationalConnector) load(ctx context.Context, ds catalog.DataSource) ([]Document, error) {
	path, table, column, err := parseRelationalURI(ds.URI)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT * FROM %s", table)
	if column != "" {
		query = fmt.Sprintf("SELECT %s FROM %s", column, table)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var docs []Document
	rowIndex := 0
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		content := renderRow(cols, values, column != "")
		rowIndex++
		if strings.TrimSpace(content) == "" {
			continue
		}

		docs = append(docs, Document{
			Content: content,
			Metadata: map[string]any{
				"table":     table,
				"row_index": rowIndex,
			},
		})
	}
	return docs, rows.Err()
}

// renderRow turns one row into text. A single selected column yields
// its bare value; full rows become "name: value" lines.
func renderRow(cols []string, values []any, single bool) string {
	if single {
		return valueString(values[0])
	}
	var lines []string
	for i, col := range cols {
		v := valueString(values[i])
		if v == "" {
			continue
		}
		lines = append(lines, col+": "+v)
	}
	return strings.Join(lines, "\n")
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func parseRelationalURI(uri string) (path, table, column string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("parse source uri: %w", err)
	}
	if u.Scheme != "sqlite" {
		return "", "", "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	path = u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", "", "", fmt.Errorf("source uri has no database path")
	}

	q := u.Query()
	table = q.Get("table")
	if table == "" {
		return "", "", "", fmt.Errorf("source uri has no table parameter")
	}
	if !identPattern.MatchString(table) {
		return "", "", "", fmt.Errorf("invalid table name %q", table)
	}

	column = q.Get("column")
	if column != "" && !identPattern.MatchString(column) {
		return "", "", "", fmt.Errorf("invalid column name %q", column)
	}
	return path, table, column, nil
}
