package mongo

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSource_FetchAll(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes every document", func(mt *mtest.T) {
		metrics := observability.NewMetricsForTesting()
		src := NewSource(mt.Coll, discardLogger(), metrics)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
				bson.D{{Key: "name", Value: "Paris"}, {Key: "dt", Value: int64(1700000000)}},
				bson.D{{Key: "name", Value: "Oslo"}},
			),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
				bson.D{{Key: "name", Value: "Lima"}, {Key: "main", Value: bson.D{{Key: "temp", Value: 18.5}}}},
			),
		)

		raws, err := src.FetchAll(context.Background())
		require.NoError(mt, err)
		require.Len(mt, raws, 3)
		assert.Equal(mt, "Paris", *raws[0].Name)
		assert.True(mt, raws[0].Dt.Valid)
		assert.False(mt, raws[1].Dt.Valid)
		assert.Equal(mt, 18.5, *raws[2].Main.Temp)
		assert.InDelta(mt, 3, testutil.ToFloat64(metrics.DocumentsRead), 0)
	})

	mt.Run("keeps documents with wrong-typed fields", func(mt *mtest.T) {
		metrics := observability.NewMetricsForTesting()
		src := NewSource(mt.Coll, discardLogger(), metrics)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "name", Value: "Paris"}},
			bson.D{
				{Key: "name", Value: "Lyon"},
				{Key: "dt", Value: int64(1700000000)},
				{Key: "main", Value: bson.D{{Key: "temp", Value: "warm"}, {Key: "humidity", Value: int32(70)}}},
				{Key: "wind", Value: "calm"},
			},
		))

		raws, err := src.FetchAll(context.Background())
		require.NoError(mt, err)
		require.Len(mt, raws, 2)
		lyon := raws[1]
		assert.Equal(mt, "Lyon", *lyon.Name)
		assert.True(mt, lyon.Dt.Valid)
		require.NotNil(mt, lyon.Main)
		assert.Nil(mt, lyon.Main.Temp)
		assert.Equal(mt, 70.0, *lyon.Main.Humidity)
		assert.Nil(mt, lyon.Wind)
		assert.Zero(mt, testutil.ToFloat64(metrics.DocumentsSkipped))
	})

	mt.Run("empty collection", func(mt *mtest.T) {
		src := NewSource(mt.Coll, discardLogger(), observability.NewMetricsForTesting())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		raws, err := src.FetchAll(context.Background())
		require.NoError(mt, err)
		assert.Empty(mt, raws)
	})

	mt.Run("find failure is source unavailable", func(mt *mtest.T) {
		src := NewSource(mt.Coll, discardLogger(), observability.NewMetricsForTesting())

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized on weather_raw",
		}))

		_, err := src.FetchAll(context.Background())
		require.Error(mt, err)
		assert.ErrorIs(mt, err, domain.ErrSourceUnavailable)
	})
}

func TestSource_Seed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts fixtures", func(mt *mtest.T) {
		src := NewSource(mt.Coll, discardLogger(), observability.NewMetricsForTesting())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		n, err := src.Seed(context.Background(), []map[string]any{
			{"name": "Paris", "dt": 1700000000},
			{"name": "Oslo"},
		})
		require.NoError(mt, err)
		assert.Equal(mt, 2, n)
	})

	mt.Run("nothing to insert", func(mt *mtest.T) {
		src := NewSource(mt.Coll, discardLogger(), observability.NewMetricsForTesting())
		n, err := src.Seed(context.Background(), nil)
		require.NoError(mt, err)
		assert.Zero(mt, n)
	})
}
