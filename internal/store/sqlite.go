package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore persists observations in a single SQLite table. Measurements
// are kept as a JSON object so the table shape does not depend on the
// requested variables.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens the database at path and creates the table.
func NewSQLiteStore(path, table string) (*SQLiteStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			timestamp TEXT NOT NULL,
			vals TEXT NOT NULL,
			ingested_at TEXT NOT NULL,
			ingestion_run_id TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_` + s.table + `_run ON ` + s.table + `(ingestion_run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.EnsureIndex(context.Background())
}

func (s *SQLiteStore) Name() string { return s.table }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("error while pinging database: %w", err)
	}
	return nil
}

// EnsureIndex creates the unique natural-key index. The upsert statement
// depends on it, so it also runs at open.
func (s *SQLiteStore) EnsureIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS `+IndexName+`_`+s.table+
		` ON `+s.table+`(source, lat, lon, timestamp)`)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// BulkUpsert writes each record independently inside one transaction; a
// failed statement is recorded and the remaining records still commit.
func (s *SQLiteStore) BulkUpsert(ctx context.Context, records []weather.ObservationRecord) (weather.BulkResult, error) {
	var res weather.BulkResult
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range records {
		outcome, err := s.upsertOne(ctx, tx, rec)
		if err != nil {
			res.Failures = append(res.Failures, weather.LoadError{Index: i, Key: rec.Key(), Err: err})
			continue
		}
		switch outcome {
		case outcomeInserted:
			res.Upserted++
		case outcomeModified:
			res.Modified++
		default:
			res.Matched++
		}
	}

	if err := tx.Commit(); err != nil {
		return weather.BulkResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

type outcome int

const (
	outcomeMatched outcome = iota
	outcomeInserted
	outcomeModified
)

func (s *SQLiteStore) upsertOne(ctx context.Context, tx *sql.Tx, rec weather.ObservationRecord) (outcome, error) {
	vals, err := encodeValues(rec)
	if err != nil {
		return outcomeMatched, err
	}

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT vals FROM `+s.table+` WHERE source = ? AND lat = ? AND lon = ? AND timestamp = ?`,
		rec.Source, rec.Latitude, rec.Longitude, rec.Timestamp,
	).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+s.table+` (source, lat, lon, timestamp, vals, ingested_at, ingestion_run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source, lat, lon, timestamp) DO UPDATE SET
				vals = excluded.vals,
				ingested_at = excluded.ingested_at,
				ingestion_run_id = excluded.ingestion_run_id`,
			rec.Source, rec.Latitude, rec.Longitude, rec.Timestamp,
			vals, rec.IngestedAt.UTC().Format(time.RFC3339Nano), rec.RunID,
		)
		if err != nil {
			return outcomeMatched, fmt.Errorf("insert: %w", err)
		}
		return outcomeInserted, nil
	case err != nil:
		return outcomeMatched, fmt.Errorf("lookup: %w", err)
	case existing == vals:
		return outcomeMatched, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE `+s.table+` SET vals = ?, ingested_at = ?, ingestion_run_id = ?
		WHERE source = ? AND lat = ? AND lon = ? AND timestamp = ?`,
		vals, rec.IngestedAt.UTC().Format(time.RFC3339Nano), rec.RunID,
		rec.Source, rec.Latitude, rec.Longitude, rec.Timestamp,
	)
	if err != nil {
		return outcomeMatched, fmt.Errorf("update: %w", err)
	}
	return outcomeModified, nil
}

// Get returns the stored record for a key.
func (s *SQLiteStore) Get(ctx context.Context, key weather.RecordKey) (weather.ObservationRecord, error) {
	var (
		vals, ingested string
		rec            = weather.ObservationRecord{
			Source:    key.Source,
			Latitude:  key.Latitude,
			Longitude: key.Longitude,
			Timestamp: key.Timestamp,
		}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT vals, ingested_at, ingestion_run_id FROM `+s.table+` WHERE source = ? AND lat = ? AND lon = ? AND timestamp = ?`,
		key.Source, key.Latitude, key.Longitude, key.Timestamp,
	).Scan(&vals, &ingested, &rec.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.ObservationRecord{}, ErrNotFound
	}
	if err != nil {
		return weather.ObservationRecord{}, err
	}

	if rec.IngestedAt, err = time.Parse(time.RFC3339Nano, ingested); err != nil {
		return weather.ObservationRecord{}, fmt.Errorf("parse ingested_at: %w", err)
	}
	var m map[string]*float64
	if err := json.Unmarshal([]byte(vals), &m); err != nil {
		return weather.ObservationRecord{}, fmt.Errorf("decode vals: %w", err)
	}
	for name, v := range m {
		rec.Values = append(rec.Values, weather.Measurement{Name: name, Value: v})
	}
	return rec, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

// encodeValues serialises measurements with sorted keys so equal values
// always produce equal text.
func encodeValues(rec weather.ObservationRecord) (string, error) {
	b, err := json.Marshal(rec.ValueMap())
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(b), nil
}
