package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/couchcryptid/weather-readings-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-readings-etl/internal/adapter/kafka"
	mongoadapter "github.com/couchcryptid/weather-readings-etl/internal/adapter/mongo"
	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	s3artifact "github.com/couchcryptid/weather-readings-etl/internal/artifact/s3"
	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/handoff"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"github.com/couchcryptid/weather-readings-etl/internal/pipeline"
	"github.com/couchcryptid/weather-readings-etl/internal/scheduler"
	"github.com/couchcryptid/weather-readings-etl/internal/store"
	"github.com/couchcryptid/weather-readings-etl/internal/store/postgres"
	"github.com/couchcryptid/weather-readings-etl/internal/store/sqlite"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline once and exit instead of serving on a schedule")
	stage := flag.String("stage", "", "with -once, run a single stage: flatten or load")
	location := flag.String("artifact", "", "artifact location for -stage load (default: last recorded by flatten)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics, *once, *stage, *location); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, once bool, stage, location string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer svc.close(logger)

	if once {
		return runOnce(ctx, svc.pipeline, stage, location, logger)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc.pipeline, svc.pipeline, prometheus.DefaultGatherer, logger)
	sched, err := scheduler.New(svc.pipeline, cfg.ScheduleInterval, cfg.BreakerTimeout, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduled runs.
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, stage, location string, logger *slog.Logger) error {
	switch stage {
	case "":
		_, err := p.RunOnce(ctx)
		return err
	case "flatten":
		res, err := p.RunFlatten(ctx)
		if err != nil {
			logger.Error("flatten failed", "error", err)
			return err
		}
		logger.Info("flatten finished", "artifact", res.Location, "records", res.Records)
		return nil
	case "load":
		res, err := p.RunLoad(ctx, location)
		if err != nil {
			logger.Error("load failed", "error", err)
			return err
		}
		logger.Info("load finished", "inserted", res.Inserted, "skipped", res.Skipped, "dropped", res.Dropped)
		return nil
	default:
		err := fmt.Errorf("unknown stage %q, want flatten or load", stage)
		logger.Error("invalid flags", "error", err)
		return err
	}
}

// app holds the wired pipeline and everything that has to be closed on exit.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (a *app) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Error("close error", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close(logger)
		return nil, err
	}

	source, err := mongoadapter.Connect(ctx, cfg, logger, metrics)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func() error { return source.Close(context.Background()) })

	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	readings, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, readings.Close)
	if err := readings.EnsureSchema(ctx); err != nil {
		return fail(err)
	}

	var locations handoff.Store = handoff.NewMemory()
	if cfg.RedisAddr != "" {
		r := handoff.NewRedis(handoff.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.HandoffTTL)
		a.closers = append(a.closers, r.Close)
		if err := r.Ping(ctx); err != nil {
			return fail(err)
		}
		locations = r
		logger.Info("artifact handoff via redis", "addr", cfg.RedisAddr)
	}

	var opts []pipeline.Option
	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkaadapter.NewRunNotifier(cfg)
		a.closers = append(a.closers, notifier.Close)
		opts = append(opts, pipeline.WithNotifier(notifier))
		logger.Info("run notifications enabled", "topic", cfg.KafkaRunsTopic)
	}
	if cfg.ArtifactCleanup {
		opts = append(opts, pipeline.WithArtifactCleanup(artifacts))
	}

	flattener := pipeline.NewFlattener(source, artifacts, cfg.Provider, logger, metrics)
	loader := pipeline.NewLoader(artifacts, readings, logger, metrics)
	a.pipeline = pipeline.New(flattener, loader, locations, logger, metrics, opts...)
	return a, nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	if cfg.ArtifactDriver == "s3" {
		return s3artifact.New(ctx, s3artifact.Config{
			Bucket:    cfg.ArtifactS3Bucket,
			Prefix:    cfg.ArtifactS3Prefix,
			Region:    cfg.ArtifactS3Region,
			Endpoint:  cfg.ArtifactS3Endpoint,
			PathStyle: cfg.ArtifactS3PathStyle,
		})
	}
	return artifact.NewFileStore(cfg.ArtifactPath), nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.DatabaseDriver == "sqlite" {
		return sqlite.Open(ctx, cfg.PostgresDSN)
	}
	return postgres.Open(ctx, cfg.PostgresDSN)
}
