package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/pipeline"
)

// The fixture is produced by cmd/genmock: 5 cities x 2 hours plus six edge
// cases (three without a usable dt, one numeric-string dt, one natural-key
// duplicate, one without a name).
func loadMockObservations(t *testing.T) []domain.RawObservation {
	t.Helper()
	path := filepath.Join("..", "..", "data", "mock", "raw_observations.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err, "read mock data")

	var raws []domain.RawObservation
	require.NoError(t, json.Unmarshal(data, &raws))
	return raws
}

func TestPipeline_WithMockObservations(t *testing.T) {
	raws := loadMockObservations(t)
	require.Len(t, raws, 16)

	f := newFixture(raws...)
	db := newSQLite(t)
	p := f.pipeline(db)
	ctx := context.Background()

	fr, err := p.RunFlatten(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, fr.Documents)
	assert.Equal(t, 16, fr.Records)
	assert.Equal(t, 3, fr.Defaulted[domain.FieldObservedAt])
	assert.Equal(t, 14, fr.Defaulted[domain.FieldRain1hMM])
	assert.Equal(t, 15, fr.Defaulted[domain.FieldSnow1hMM])

	lr, err := p.RunLoad(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.LoadResult{
		Read:       16,
		Dropped:    3,
		Duplicates: 1,
		Attempted:  12,
		Inserted:   12,
		Skipped:    0,
	}, lr)

	again, err := p.RunLoad(ctx, fr.Location)
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, int64(12), again.Skipped)

	n, err := db.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	var parisTemp float64
	require.NoError(t, db.DB().QueryRowContext(ctx,
		`SELECT temp_c FROM weather_readings WHERE city = 'Paris' ORDER BY observed_at LIMIT 1`).Scan(&parisTemp))
	assert.Equal(t, 10.0, parisTemp, "first Paris observation wins over the later duplicate")

	var nullCities int
	require.NoError(t, db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weather_readings WHERE city IS NULL`).Scan(&nullCities))
	assert.Equal(t, 1, nullCities)
}

func TestFlatten_MockObservationsNeverNullPrecipitation(t *testing.T) {
	records, _ := domain.FlattenAll(loadMockObservations(t), domain.DefaultProvider)
	for i, rec := range records {
		require.NotNil(t, rec.Rain1hMM, "record %d", i)
		require.NotNil(t, rec.Snow1hMM, "record %d", i)
		assert.Equal(t, domain.DefaultProvider, rec.Provider)
	}
}
