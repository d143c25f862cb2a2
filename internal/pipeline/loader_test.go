package pipeline_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/pipeline"
)

func newLoader(f *fixture, rs pipeline.ReadingStore) *pipeline.Loader {
	return pipeline.NewLoader(f.artifacts, rs, discardLogger(), f.metrics)
}

func writeArtifact(t *testing.T, f *fixture, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, artifactPath, []byte(body), 0o600))
}

func TestLoader_BlankLocation(t *testing.T) {
	for _, loc := range []string{"", "   "} {
		f := newFixture()
		rs := &mockStore{}

		_, err := newLoader(f, rs).Load(context.Background(), loc)
		require.ErrorIs(t, err, domain.ErrInvalidArtifact)
		assert.Empty(t, rs.inserted, "store must not be touched")
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StageFailures.WithLabelValues("load")), 0)
	}
}

func TestLoader_CorruptArtifact(t *testing.T) {
	tests := map[string]string{
		"truncated": `[{"city":"Paris"`,
		"not array": `{"city":"Paris"}`,
		"null":      `null`,
		"blank":     ``,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			writeArtifact(t, f, body)
			rs := &mockStore{}

			_, err := newLoader(f, rs).Load(context.Background(), artifactPath)
			require.ErrorIs(t, err, domain.ErrSourceUnavailable)
			assert.Empty(t, rs.inserted)
		})
	}
}

func TestLoader_MissingArtifact(t *testing.T) {
	f := newFixture()
	rs := &mockStore{}

	_, err := newLoader(f, rs).Load(context.Background(), "/tmp/weather_pipeline/gone.json")
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Empty(t, rs.inserted)
}

func TestLoader_BadTimestampDropsOnlyThatRecord(t *testing.T) {
	f := newFixture()
	writeArtifact(t, f, `[
		{"city":"Paris","observed_at":"2023-11-14T22:13:20Z","temp_c":12.3,"provider":"openweather"},
		{"city":"Rome","observed_at":1700000000,"temp_c":15,"provider":"openweather"},
		{"city":"Oslo","observed_at":true,"provider":"openweather"}
	]`)
	rs := &mockStore{}

	res, err := newLoader(f, rs).Load(context.Background(), artifactPath)
	require.NoError(t, err)
	assert.Equal(t, pipeline.LoadResult{Read: 3, Dropped: 1, Attempted: 2, Inserted: 2}, res)

	require.Len(t, rs.inserted, 1)
	got := rs.inserted[0]
	require.Len(t, got, 2)
	assert.Equal(t, "Paris", *got[0].City)
	assert.Equal(t, "Rome", *got[1].City)
	assert.Equal(t, int64(1700000000), got[1].ObservedAt.Unix())
}

func TestLoader_AllRecordsDropped(t *testing.T) {
	f := newFixture()
	writeArtifact(t, f, `[{"city":"Oslo","observed_at":null,"provider":"openweather"}]`)
	rs := &mockStore{}

	res, err := newLoader(f, rs).Load(context.Background(), artifactPath)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, res.Attempted)
	assert.Empty(t, rs.inserted, "no transaction when nothing survives")
}
