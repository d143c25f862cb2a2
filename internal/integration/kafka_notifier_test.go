//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-readings-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

const testRunsTopic = "test-weather-etl-runs"

// TestRunNotifier verifies a run summary round-trips through Kafka with its
// key and headers.
func TestRunNotifier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRunsTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaRunsTopic: testRunsTopic}
	notifier := kafka.NewRunNotifier(cfg)
	t.Cleanup(func() { _ = notifier.Close() })

	finished := time.Date(2024, 4, 26, 15, 0, 3, 0, time.UTC)
	summary := domain.RunSummary{
		RunID:      "run-integration",
		Outcome:    domain.OutcomeSuccess,
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
		Documents:  16,
		Inserted:   12,
	}
	require.NoError(t, notifier.Notify(ctx, summary))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testRunsTopic,
		GroupID:     fmt.Sprintf("test-runs-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from runs topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "run-integration", string(msg.Key))
	assert.Equal(t, "success", headers["outcome"])
	assert.Equal(t, "2024-04-26T15:00:03Z", headers["finished_at"])

	var got domain.RunSummary
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, int64(12), got.Inserted)
	assert.Equal(t, 16, got.Documents)
}
