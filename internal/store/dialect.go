package store

import "strconv"

// Dialect captures the SQL differences between the supported relational
// stores.
type Dialect struct {
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Schema is executed statement by statement by EnsureSchema.
	Schema []string
	// OnConflict is appended to every insert.
	OnConflict string
	// MaxParams is the bind-parameter limit of a single statement.
	MaxParams int
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Postgres is the production dialect. The natural key treats NULL cities as
// equal so a reading without a city is still inserted at most once. The
// conflict target is inferred from the columns, so a table created elsewhere
// with any unique constraint on (city, observed_at, provider) also works.
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS weather_readings (
	id            BIGSERIAL PRIMARY KEY,
	city          TEXT,
	country       TEXT,
	lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
	lon           DOUBLE PRECISION NOT NULL DEFAULT 0,
	observed_at   TIMESTAMPTZ NOT NULL,
	temp_c        DOUBLE PRECISION NOT NULL DEFAULT 0,
	humidity_pct  DOUBLE PRECISION NOT NULL DEFAULT 0,
	wind_speed_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	rain_1h_mm    DOUBLE PRECISION NOT NULL DEFAULT 0,
	snow_1h_mm    DOUBLE PRECISION NOT NULL DEFAULT 0,
	condition     TEXT,
	description   TEXT,
	provider      TEXT NOT NULL,
	inserted_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT weather_readings_natural_key UNIQUE NULLS NOT DISTINCT (city, observed_at, provider)
)`,
		`CREATE INDEX IF NOT EXISTS weather_readings_observed_at_idx ON weather_readings (observed_at)`,
	},
	OnConflict:  "ON CONFLICT (city, observed_at, provider) DO NOTHING",
	MaxParams:   65535,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// SQLite is used for local runs and tests. SQLite has no NULLS NOT DISTINCT,
// so the natural key is an expression index that folds NULL into a flag.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS weather_readings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	city          TEXT,
	country       TEXT,
	lat           REAL NOT NULL DEFAULT 0,
	lon           REAL NOT NULL DEFAULT 0,
	observed_at   TIMESTAMP NOT NULL,
	temp_c        REAL NOT NULL DEFAULT 0,
	humidity_pct  REAL NOT NULL DEFAULT 0,
	wind_speed_ms REAL NOT NULL DEFAULT 0,
	rain_1h_mm    REAL NOT NULL DEFAULT 0,
	snow_1h_mm    REAL NOT NULL DEFAULT 0,
	condition     TEXT,
	description   TEXT,
	provider      TEXT NOT NULL,
	inserted_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS weather_readings_natural_key
	ON weather_readings (city IS NULL, IFNULL(city, ''), observed_at, provider)`,
		`CREATE INDEX IF NOT EXISTS weather_readings_observed_at_idx ON weather_readings (observed_at)`,
	},
	OnConflict:  "ON CONFLICT DO NOTHING",
	MaxParams:   32766,
	Placeholder: func(int) string { return "?" },
}

// Dialects indexes the supported dialects by name.
var Dialects = map[string]Dialect{
	Postgres.Name: Postgres,
	SQLite.Name:   SQLite,
}
