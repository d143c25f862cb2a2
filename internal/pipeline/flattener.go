package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
)

const stageFlatten = "flatten"

// FlattenResult describes a written artifact.
type FlattenResult struct {
	Location  string
	Documents int
	Records   int
	// Defaulted counts, per field, the documents that lacked it.
	Defaulted map[string]int
	// Empty is set when the source had no documents. An empty artifact is
	// still written.
	Empty bool
}

// Flattener reads the whole raw collection and writes it as one artifact of
// flat records.
type Flattener struct {
	source    DocumentSource
	artifacts artifact.Store
	provider  string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewFlattener creates a Flattener tagging records with provider.
func NewFlattener(source DocumentSource, artifacts artifact.Store, provider string, logger *slog.Logger, metrics *observability.Metrics) *Flattener {
	if provider == "" {
		provider = domain.DefaultProvider
	}
	return &Flattener{
		source:    source,
		artifacts: artifacts,
		provider:  provider,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run performs the flatten stage. On a source failure no artifact is
// written and the error wraps domain.ErrSourceUnavailable.
func (f *Flattener) Run(ctx context.Context, runID string) (FlattenResult, error) {
	start := time.Now()
	defer func() {
		f.metrics.StageDuration.WithLabelValues(stageFlatten).Observe(time.Since(start).Seconds())
	}()

	raws, err := f.source.FetchAll(ctx)
	if err != nil {
		f.metrics.StageFailures.WithLabelValues(stageFlatten).Inc()
		f.logger.Error("flatten: read source failed", "run_id", runID, "error", err)
		return FlattenResult{}, err
	}

	records, defaulted := domain.FlattenAll(raws, f.provider)
	res := FlattenResult{
		Documents: len(raws),
		Records:   len(records),
		Defaulted: defaulted,
		Empty:     len(records) == 0,
	}

	loc, err := f.artifacts.Write(ctx, runID, records)
	if err != nil {
		f.metrics.StageFailures.WithLabelValues(stageFlatten).Inc()
		f.logger.Error("flatten: write artifact failed", "run_id", runID, "records", len(records), "error", err)
		return res, fmt.Errorf("write artifact: %w", err)
	}
	res.Location = loc

	f.metrics.RecordsFlattened.Add(float64(len(records)))
	for field, n := range defaulted {
		f.metrics.FieldsDefaulted.WithLabelValues(field).Add(float64(n))
	}

	if res.Empty {
		f.logger.Warn("flatten: source collection is empty", "run_id", runID, "artifact", loc)
		return res, nil
	}
	f.logger.Info("flatten: artifact written",
		"run_id", runID,
		"documents", res.Documents,
		"records", res.Records,
		"artifact", loc,
		"defaulted", defaulted,
	)
	return res, nil
}
