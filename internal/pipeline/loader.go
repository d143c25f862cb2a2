package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
)

const stageLoad = "load"

// LoadResult reports what happened to an artifact's records.
type LoadResult struct {
	Read       int // records in the artifact
	Dropped    int // records without a usable observed_at
	Duplicates int // records removed by in-batch natural-key dedup
	Attempted  int // records sent to the store
	Inserted   int64
	Skipped    int64 // Attempted minus Inserted: natural key already present
	Empty      bool  // the artifact had no records
}

// Loader moves an artifact into the relational store. Re-loading the same
// artifact inserts nothing.
type Loader struct {
	artifacts artifact.Store
	store     ReadingStore
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewLoader creates a Loader.
func NewLoader(artifacts artifact.Store, store ReadingStore, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{artifacts: artifacts, store: store, logger: logger, metrics: metrics}
}

// Load reads the artifact at location, drops records without a valid
// timestamp, defaults missing numerics to zero, removes in-batch duplicates
// and inserts the rest in one transaction.
func (l *Loader) Load(ctx context.Context, location string) (res LoadResult, err error) {
	start := time.Now()
	defer func() {
		l.metrics.StageDuration.WithLabelValues(stageLoad).Observe(time.Since(start).Seconds())
		if err != nil {
			l.metrics.StageFailures.WithLabelValues(stageLoad).Inc()
			l.logger.Error("load failed", "artifact", location, "read", res.Read, "attempted", res.Attempted, "error", err)
		}
	}()

	if strings.TrimSpace(location) == "" {
		return LoadResult{}, domain.ErrInvalidArtifact
	}

	records, err := l.artifacts.Read(ctx, location)
	if err != nil {
		return LoadResult{}, err
	}
	res.Read = len(records)
	if res.Read == 0 {
		res.Empty = true
		l.logger.Warn("load: artifact is empty", "artifact", location)
		return res, nil
	}

	readings, rejected := domain.Normalize(records)
	for _, r := range rejected {
		l.logger.Warn("load: dropping record", "artifact", location, "index", r.Index, "observed_at", r.Value, "reason", r.Reason)
	}
	res.Dropped = len(rejected)
	l.metrics.RecordsDropped.Add(float64(res.Dropped))

	readings, res.Duplicates = domain.Deduplicate(readings)
	l.metrics.DuplicatesRemoved.Add(float64(res.Duplicates))
	res.Attempted = len(readings)
	if res.Attempted == 0 {
		l.logger.Warn("load: no valid records", "artifact", location, "read", res.Read, "dropped", res.Dropped)
		return res, nil
	}

	inserted, err := l.store.InsertReadings(ctx, readings)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted
	res.Skipped = int64(res.Attempted) - inserted
	l.metrics.RowsInserted.Add(float64(res.Inserted))
	l.metrics.RowsSkipped.Add(float64(res.Skipped))

	l.logger.Info("load: rows inserted",
		"artifact", location,
		"read", res.Read,
		"dropped", res.Dropped,
		"duplicates", res.Duplicates,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
	)
	return res, nil
}
