// Package sqlite opens a weather_readings store on SQLite for local runs
// and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // register the pure-Go sqlite driver

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/store"
)

// Open opens a database file, or a private in-memory database for ":memory:"
// or an empty path. The handle is limited to one connection so an in-memory
// database lives as long as the Store.
func Open(ctx context.Context, path string) (*store.Store, error) {
	dsn := strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open(store.SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", domain.ErrStore, err)
	}
	db.SetMaxOpenConns(1)

	s := store.New(db, store.SQLite)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
