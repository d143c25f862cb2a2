// Package postgres opens the production weather_readings store.
package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/couchcryptid/weather-readings-etl/internal/store"
)

// Open connects to Postgres with a URL or key/value DSN and pings it.
func Open(ctx context.Context, dsn string) (*store.Store, error) {
	return store.Open(ctx, store.Postgres, dsn)
}
