// Package telemetry records indexing metrics in SQLite.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Recorder receives indexing metrics. The orchestrator treats metrics
// as best-effort and keeps working when recording fails.
type Recorder interface {
	// RecordCycle notes one finished indexing cycle.
	RecordCycle(duration time.Duration, sources int) error

	// RecordOutcome notes one source reaching a terminal status.
	RecordOutcome(tenantID, sourceType, status string) error

	// RecordCollectionSize notes the current point count of a
	// tenant collection.
	RecordCollectionSize(collection string, points uint64) error
}

// SQLiteMetricsStore implements Recorder using SQLite, aggregated per
// day so the file stays small over long deployments.
type SQLiteMetricsStore struct {
	db *sql.DB
}

var _ Recorder = (*SQLiteMetricsStore)(nil)

// OpenSQLite opens (creating if needed) the metrics database at path.
func OpenSQLite(path string) (*SQLiteMetricsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure metrics database: %w", err)
		}
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteMetricsStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	-- Indexing cycles (aggregated daily)
	CREATE TABLE IF NOT EXISTS cycle_stats (
		date               TEXT PRIMARY KEY,
		cycles             INTEGER NOT NULL DEFAULT 0,
		sources_processed  INTEGER NOT NULL DEFAULT 0,
		total_duration_ms  INTEGER NOT NULL DEFAULT 0
	);

	-- Per-source outcomes (aggregated daily)
	CREATE TABLE IF NOT EXISTS outcome_stats (
		date        TEXT NOT NULL,
		tenant_id   TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status      TEXT NOT NULL,
		count       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, tenant_id, source_type, status)
	);

	-- Latest known size per tenant collection
	CREATE TABLE IF NOT EXISTS collection_stats (
		collection TEXT PRIMARY KEY,
		points     INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create metrics schema: %w", err)
	}
	return nil
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (s *SQLiteMetricsStore) RecordCycle(duration time.Duration, sources int) error {
	_, err := s.db.Exec(`
		INSERT INTO cycle_stats (date, cycles, sources_processed, total_duration_ms)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			cycles            = cycles + 1,
			sources_processed = sources_processed + excluded.sources_processed,
			total_duration_ms = total_duration_ms + excluded.total_duration_ms
	`, today(), sources, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

func (s *SQLiteMetricsStore) RecordOutcome(tenantID, sourceType, status string) error {
	_, err := s.db.Exec(`
		INSERT INTO outcome_stats (date, tenant_id, source_type, status, count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(date, tenant_id, source_type, status) DO UPDATE SET count = count + 1
	`, today(), tenantID, sourceType, status)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (s *SQLiteMetricsStore) RecordCollectionSize(collection string, points uint64) error {
	_, err := s.db.Exec(`
		INSERT INTO collection_stats (collection, points, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			points     = excluded.points,
			updated_at = excluded.updated_at
	`, collection, points, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record collection size: %w", err)
	}
	return nil
}

// CycleTotals sums cycle counters over all recorded days.
func (s *SQLiteMetricsStore) CycleTotals() (cycles, sources, durationMS int64, err error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(SUM(cycles), 0),
		       COALESCE(SUM(sources_processed), 0),
		       COALESCE(SUM(total_duration_ms), 0)
		FROM cycle_stats
	`)
	if err := row.Scan(&cycles, &sources, &durationMS); err != nil {
		return 0, 0, 0, fmt.Errorf("query cycle totals: %w", err)
	}
	return cycles, sources, durationMS, nil
}

// OutcomeCounts returns the total count per terminal status.
func (s *SQLiteMetricsStore) OutcomeCounts() (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT status, SUM(count) FROM outcome_stats GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CollectionSizes returns the latest recorded point count per collection.
func (s *SQLiteMetricsStore) CollectionSizes() (map[string]uint64, error) {
	rows, err := s.db.Query(`SELECT collection, points FROM collection_stats`)
	if err != nil {
		return nil, fmt.Errorf("query collection sizes: %w", err)
	}
	defer rows.Close()

	sizes := make(map[string]uint64)
	for rows.Next() {
		var collection string
		var points uint64
		if err := rows.Scan(&collection, &points); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		sizes[collection] = points
	}
	return sizes, rows.Err()
}

func (s *SQLiteMetricsStore) Close() error {
	return s.db.Close()
}
