package serving

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PredictionRecord is one audited prediction request
type PredictionRecord struct {
	Timestamp     int64   // Unix seconds
	ModelVersion  string  // Version that served the prediction
	Lat           float64 // Request latitude
	Lng           float64 // Request longitude
	DayNo         int     // Request day-of-year index
	UTCOffset     int     // Request UTC offset
	SunriseHour   float64
	SunriseMinute float64
	SunsetHour    float64
	SunsetMinute  float64
	Error         string // Non-empty for failed predictions (polar day/night)
}

// AuditBuffer accumulates prediction records between periodic flushes
type AuditBuffer struct {
	mu      sync.Mutex
	records []PredictionRecord
}

func (b *AuditBuffer) Add(record PredictionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
}

// Drain returns all buffered records and resets the buffer
func (b *AuditBuffer) Drain() []PredictionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return nil
	}
	drained := b.records
	b.records = nil
	return drained
}

func (b *AuditBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Store persists model versions and the prediction audit log to PostgreSQL
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// NewStore opens a PostgreSQL connection for the endpoint. Returns nil
// when connString is empty, which disables persistence.
func NewStore(connString string, logger *log.Logger) (*Store, error) {
	if connString == "" {
		return nil, nil
	}
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema creates the tables used by the endpoint if they do not exist
func (s *Store) InitSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS model_versions (
			model      TEXT NOT NULL,
			version    TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (model, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create model_versions table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS prediction_log (
			id            BIGSERIAL PRIMARY KEY,
			timestamp     BIGINT NOT NULL,
			model_version TEXT NOT NULL,
			lat           DOUBLE PRECISION NOT NULL,
			lng           DOUBLE PRECISION NOT NULL,
			dayno         INTEGER NOT NULL,
			utc_offset    INTEGER NOT NULL,
			sunrise_hr    DOUBLE PRECISION,
			sunrise_min   DOUBLE PRECISION,
			sunset_hr     DOUBLE PRECISION,
			sunset_min    DOUBLE PRECISION,
			error         TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create prediction_log table: %w", err)
	}

	return nil
}

// SaveVersion upserts a model version record
func (s *Store) SaveVersion(ctx context.Context, mv ModelVersion) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if mv.IsDefault {
		// Only one default per model
		_, err = tx.ExecContext(ctx, `UPDATE model_versions SET is_default = FALSE WHERE model = $1`, mv.Model)
		if err != nil {
			return fmt.Errorf("failed to clear default flags: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO model_versions (model, version, checksum, created_at, is_default)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model, version) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			is_default = EXCLUDED.is_default
	`, mv.Model, mv.Version, mv.Checksum, mv.CreatedAt, mv.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to upsert version %s/%s: %w", mv.Model, mv.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteVersion removes a model version record
func (s *Store) DeleteVersion(ctx context.Context, model, version string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM model_versions WHERE model = $1 AND version = $2`, model, version)
	if err != nil {
		return fmt.Errorf("failed to delete version %s/%s: %w", model, version, err)
	}
	return nil
}

// LoadVersions returns all stored versions of a model, oldest first
func (s *Store) LoadVersions(ctx context.Context, model string) ([]ModelVersion, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model, version, checksum, created_at, is_default
		FROM model_versions
		WHERE model = $1
		ORDER BY created_at ASC
	`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []ModelVersion
	for rows.Next() {
		var mv ModelVersion
		var createdAt time.Time
		if err := rows.Scan(&mv.Model, &mv.Version, &mv.Checksum, &createdAt, &mv.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		mv.CreatedAt = createdAt
		versions = append(versions, mv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}

	return versions, nil
}

// SavePredictions inserts a batch of audit records in a single transaction
func (s *Store) SavePredictions(ctx context.Context, records []PredictionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database connection not available")
	}

	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prediction_log (
			timestamp,
			model_version,
			lat,
			lng,
			dayno,
			utc_offset,
			sunrise_hr,
			sunrise_min,
			sunset_hr,
			sunset_min,
			error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		_, err := stmt.ExecContext(ctx,
			record.Timestamp,
			record.ModelVersion,
			record.Lat,
			record.Lng,
			record.DayNo,
			record.UTCOffset,
			record.SunriseHour,
			record.SunriseMinute,
			record.SunsetHour,
			record.SunsetMinute,
			record.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert prediction record at %d: %w", record.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Saved %d prediction records to database", len(records))
	return nil
}

// CountPredictions returns the number of audited predictions for a version
// (all versions when version is empty).
func (s *Store) CountPredictions(ctx context.Context, version string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("database connection not available")
	}

	var count int
	var err error
	if version == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_log`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prediction_log WHERE model_version = $1`, version).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return count, nil
}
