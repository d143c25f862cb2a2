// Package scheduler runs the pipeline on a fixed interval behind a circuit
// breaker so a persistently failing dependency is not hammered every tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
)

const (
	jobName = "weather_etl_run"

	// consecutiveFailures opens the breaker.
	consecutiveFailures = 3
)

// Runner executes one complete pipeline run.
type Runner interface {
	RunOnce(ctx context.Context) (domain.RunSummary, error)
}

// Scheduler triggers Runner on an interval. Overlapping ticks are
// rescheduled rather than run concurrently.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	cron     gocron.Scheduler
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Scheduler. breakerTimeout is how long the breaker stays open
// before a single trial run is allowed through.
func New(runner Runner, interval, breakerTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule interval must be positive, got %s", interval)
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		runner:   runner,
		interval: interval,
		cron:     cron,
		logger:   logger,
		metrics:  metrics,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        jobName,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s, nil
}

// Start registers the job, runs it immediately and then every interval
// until ctx is cancelled or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.Tick),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	s.cron.Start()
	s.metrics.SchedulerRunning.Set(1)
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Shutdown stops the scheduler and waits for a running tick to return.
func (s *Scheduler) Shutdown() error {
	s.metrics.SchedulerRunning.Set(0)
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Tick performs one scheduled run through the circuit breaker. A tick while
// the breaker is open is skipped without touching the pipeline.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.breaker.Execute(func() (any, error) {
		return s.runner.RunOnce(ctx)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.metrics.Runs.WithLabelValues("skipped").Inc()
		s.logger.Warn("scheduled run skipped", "reason", err)
	case err != nil:
		// RunOnce already logged the failure with its run ID.
		s.logger.Debug("scheduled run failed", "consecutive_failures", s.breaker.Counts().ConsecutiveFailures)
	}
}

// State reports the breaker state: closed, half-open or open.
func (s *Scheduler) State() string {
	return s.breaker.State().String()
}
