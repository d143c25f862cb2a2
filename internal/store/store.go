// Package store writes readings to the weather_readings table. All SQL goes
// through database/sql; the postgres and sqlite subpackages register their
// drivers and open a Store with the matching Dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// columns lists the inserted columns in bind order.
var columns = []string{
	"city", "country", "lat", "lon", "observed_at",
	"temp_c", "humidity_pct", "wind_speed_ms", "rain_1h_mm", "snow_1h_mm",
	"condition", "description", "provider",
}

// Store is a weather_readings table reached through database/sql.
// It implements pipeline.ReadingStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
	maxRows int
}

// New wraps an open database handle.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, maxRows: d.MaxParams / len(columns)}
}

// Open opens and pings a database with the dialect's driver. The driver must
// already be registered.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStore, d.Name, err)
	}
	s := New(db, d)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping %s: %w", domain.ErrStore, s.dialect.Name, err)
	}
	return nil
}

// Close releases the handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the table and its indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", domain.ErrStore, err)
		}
	}
	return nil
}

// InsertReadings inserts readings in one transaction, skipping any whose
// natural key already exists, and returns how many rows were created.
// Batches above the dialect's bind-parameter limit are split into several
// statements inside the same transaction. On any error nothing is written.
func (s *Store) InsertReadings(ctx context.Context, readings []domain.Reading) (int64, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %w", domain.ErrStore, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var inserted int64
	for start := 0; start < len(readings); start += s.maxRows {
		end := min(start+s.maxRows, len(readings))
		n, err := s.insertChunk(ctx, tx, readings[start:end])
		if err != nil {
			return 0, fmt.Errorf("%w: insert rows %d-%d: %w", domain.ErrStore, start, end-1, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	committed = true
	return inserted, nil
}

func (s *Store) insertChunk(ctx context.Context, tx *sql.Tx, chunk []domain.Reading) (int64, error) {
	query, args := s.buildInsert(chunk)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) buildInsert(chunk []domain.Reading) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(chunk)*len(columns))

	b.WriteString("INSERT INTO weather_readings (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i := range chunk {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.dialect.Placeholder(len(args) + j + 1))
		}
		b.WriteByte(')')
		args = append(args, rowArgs(chunk[i])...)
	}
	b.WriteByte(' ')
	b.WriteString(s.dialect.OnConflict)
	return b.String(), args
}

func rowArgs(r domain.Reading) []any {
	return []any{
		nullString(r.City), nullString(r.Country), r.Lat, r.Lon, r.ObservedAt.UTC(),
		r.TempC, r.HumidityPct, r.WindSpeedMS, r.Rain1hMM, r.Snow1hMM,
		nullString(r.Condition), nullString(r.Description), r.Provider,
	}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// CountReadings returns the number of rows in weather_readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count readings: %w", domain.ErrStore, err)
	}
	return n, nil
}
