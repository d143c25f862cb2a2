package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Source reads raw observation documents from a MongoDB collection.
// It implements pipeline.DocumentSource.
type Source struct {
	client  *mongodrv.Client
	coll    *mongodrv.Collection
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Connect creates a client for the configured URI and binds the raw
// collection. The driver dials lazily, so an unreachable server surfaces on
// the first FetchAll rather than here.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Source, error) {
	client, err := mongodrv.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %w", domain.ErrSourceUnavailable, err)
	}
	coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	s := NewSource(coll, logger, metrics)
	s.client = client
	return s, nil
}

// NewSource wraps an existing collection handle.
func NewSource(coll *mongodrv.Collection, logger *slog.Logger, metrics *observability.Metrics) *Source {
	return &Source{coll: coll, logger: logger, metrics: metrics}
}

// FetchAll returns every document in the collection. Wrong-typed fields
// decode as absent; a document that is not valid BSON is logged and skipped.
func (s *Source) FetchAll(ctx context.Context) ([]domain.RawObservation, error) {
	cursor, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("%w: find in %s: %w", domain.ErrSourceUnavailable, s.namespace(), err)
	}
	defer cursor.Close(ctx)

	var out []domain.RawObservation
	for cursor.Next(ctx) {
		var raw domain.RawObservation
		if err := cursor.Decode(&raw); err != nil {
			s.logger.Warn("skipping undecodable document",
				"collection", s.namespace(),
				"id", cursor.Current.Lookup("_id").String(),
				"error", err,
			)
			s.metrics.DocumentsSkipped.Inc()
			continue
		}
		out = append(out, raw)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %w", domain.ErrSourceUnavailable, s.namespace(), err)
	}
	s.metrics.DocumentsRead.Add(float64(len(out)))
	return out, nil
}

// Ping checks that the server is reachable.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.coll.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping mongo: %w", domain.ErrSourceUnavailable, err)
	}
	return nil
}

// Close disconnects the client when the Source owns it.
func (s *Source) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Seed inserts fixture documents into the collection and returns how many
// were written.
func (s *Source) Seed(ctx context.Context, docs []map[string]any) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, len(docs))
	for i := range docs {
		batch[i] = docs[i]
	}
	res, err := s.coll.InsertMany(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", s.namespace(), err)
	}
	return len(res.InsertedIDs), nil
}

func (s *Source) namespace() string {
	return s.coll.Database().Name() + "." + s.coll.Name()
}
