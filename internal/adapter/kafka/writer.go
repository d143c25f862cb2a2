package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// RunNotifier publishes run summaries to a Kafka topic.
// It implements pipeline.Notifier.
type RunNotifier struct {
	writer messageWriter
	topic  string
}

// NewRunNotifier creates a producer for the configured runs topic.
func NewRunNotifier(cfg *config.Config) *RunNotifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaRunsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &RunNotifier{writer: w, topic: cfg.KafkaRunsTopic}
}

// Notify publishes one summary. Errors are returned unlogged; the pipeline
// logs them and treats them as non-fatal.
func (n *RunNotifier) Notify(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run summary %s to %s: %w", summary.RunID, n.topic, err)
	}
	return nil
}

func (n *RunNotifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a RunSummary into a Kafka message keyed by run ID.
func serializeToMessage(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(summary.Outcome)},
			{Key: "finished_at", Value: []byte(summary.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
