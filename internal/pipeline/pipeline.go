package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/handoff"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"github.com/google/uuid"
)

// DocumentSource reads every raw observation from the document store.
type DocumentSource interface {
	FetchAll(ctx context.Context) ([]domain.RawObservation, error)
}

// ReadingStore inserts readings, skipping existing natural keys, and reports
// how many rows were created.
type ReadingStore interface {
	InsertReadings(ctx context.Context, readings []domain.Reading) (int64, error)
}

// Notifier receives the summary of every finished run.
type Notifier interface {
	Notify(ctx context.Context, summary domain.RunSummary) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier publishes every run summary to n.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithArtifactCleanup removes the artifact after a run that did not fail.
func WithArtifactCleanup(store artifact.Store) Option {
	return func(p *Pipeline) { p.cleanup = store }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) Option {
	return func(p *Pipeline) { p.newRunID = next }
}

// Pipeline sequences one flatten and one load and threads the artifact
// location between them through the handoff store.
type Pipeline struct {
	flattener *Flattener
	loader    *Loader
	handoff   handoff.Store
	notifier  Notifier
	cleanup   artifact.Store
	newRunID  func() string
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu      sync.RWMutex
	lastErr error
	last    domain.RunSummary
	ran     bool
}

// New creates a Pipeline from its two stages.
func New(f *Flattener, l *Loader, h handoff.Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		flattener: f,
		loader:    l,
		handoff:   h,
		newRunID:  uuid.NewString,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the most recent run has finished without
// error, or an error describing why the service is not ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case !p.ran:
		return errors.New("no pipeline run has completed yet")
	case p.lastErr != nil:
		return fmt.Errorf("last run failed: %w", p.lastErr)
	}
	return nil
}

// LastRun returns the summary of the most recent RunOnce, if any.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.ran
}

// RunOnce flattens the document store, loads the resulting artifact and
// reports the run. The returned error is the first stage failure; the
// summary is filled in either way.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	summary := domain.RunSummary{RunID: p.newRunID(), StartedAt: domain.Now()}
	log := p.logger.With("run_id", summary.RunID)
	log.Info("run started")

	fr, err := p.flattener.Run(ctx, summary.RunID)
	summary.Documents, summary.Flattened = fr.Documents, fr.Records
	if err != nil {
		return p.finish(ctx, log, summary, "flatten", err)
	}
	summary.Artifact = fr.Location

	if err := p.handoff.Put(ctx, fr.Location); err != nil {
		return p.finish(ctx, log, summary, "handoff", err)
	}

	lr, err := p.loader.Load(ctx, fr.Location)
	summary.Dropped, summary.Duplicates, summary.Attempted = lr.Dropped, lr.Duplicates, lr.Attempted
	summary.Inserted, summary.Skipped = lr.Inserted, lr.Skipped
	if err != nil {
		return p.finish(ctx, log, summary, "load", err)
	}

	if p.cleanup != nil {
		if err := p.cleanup.Remove(ctx, fr.Location); err != nil {
			log.Warn("artifact cleanup failed", "artifact", fr.Location, "error", err)
		}
	}
	return p.finish(ctx, log, summary, "", nil)
}

// RunFlatten runs only the flatten stage and records the artifact location
// for a later RunLoad.
func (p *Pipeline) RunFlatten(ctx context.Context) (FlattenResult, error) {
	runID := p.newRunID()
	fr, err := p.flattener.Run(ctx, runID)
	if err != nil {
		return fr, err
	}
	if err := p.handoff.Put(ctx, fr.Location); err != nil {
		return fr, fmt.Errorf("record artifact location: %w", err)
	}
	p.logger.Info("artifact recorded", "run_id", runID, "artifact", fr.Location)
	return fr, nil
}

// RunLoad runs only the load stage. An empty location is taken from the
// handoff store.
func (p *Pipeline) RunLoad(ctx context.Context, location string) (LoadResult, error) {
	if strings.TrimSpace(location) == "" {
		latest, err := p.handoff.Latest(ctx)
		if err != nil {
			return LoadResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidArtifact, err)
		}
		location = latest
	}
	return p.loader.Load(ctx, location)
}

func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, summary domain.RunSummary, stage string, err error) (domain.RunSummary, error) {
	summary.FinishedAt = domain.Now()
	switch {
	case err != nil:
		summary.Outcome = domain.OutcomeFailure
		summary.FailedStage = stage
		summary.Error = err.Error()
	case summary.Attempted == 0:
		summary.Outcome = domain.OutcomeEmpty
	default:
		summary.Outcome = domain.OutcomeSuccess
	}

	p.mu.Lock()
	p.ran, p.lastErr, p.last = true, err, summary
	p.mu.Unlock()

	p.metrics.Runs.WithLabelValues(string(summary.Outcome)).Inc()
	if err != nil {
		log.Error("run failed",
			"stage", stage,
			"artifact", summary.Artifact,
			"duration", summary.Duration(),
			"error", err,
		)
	} else {
		p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
		log.Info("run finished",
			"outcome", summary.Outcome,
			"documents", summary.Documents,
			"inserted", summary.Inserted,
			"skipped", summary.Skipped,
			"dropped", summary.Dropped,
			"duplicates", summary.Duplicates,
			"duration", summary.Duration(),
		)
	}

	if p.notifier != nil {
		if nerr := p.notifier.Notify(ctx, summary); nerr != nil {
			log.Warn("run notification failed", "error", nerr)
		}
	}
	return summary, err
}
