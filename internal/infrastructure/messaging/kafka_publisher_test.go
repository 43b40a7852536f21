package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func finishedRun(t *testing.T) *integration.IngestionRun {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := integration.NewIngestionRun("tokyo-1", integration.MarketplaceYahoo, integration.RunModeScheduled, now.Add(-time.Hour), now, now)
	require.NoError(t, run.Start(now))
	require.NoError(t, run.Succeed(integration.RunStats{LinesWritten: 12, RowErrors: 1, Complete: true}, now.Add(time.Minute)))
	return run
}

func TestNewKafkaRunPublisher_Validation(t *testing.T) {
	_, err := NewKafkaRunPublisher(config.KafkaConfig{Topic: "ingestion.runs"}, zap.NewNop())
	assert.ErrorContains(t, err, "broker")

	_, err = NewKafkaRunPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	assert.ErrorContains(t, err, "topic")

	p, err := NewKafkaRunPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "ingestion.runs"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestKafkaRunPublisher_PublishRunCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("writes keyed json event", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaRunPublisher(w, time.Second, zap.NewNop())
		run := finishedRun(t)

		require.NoError(t, p.PublishRunCompleted(ctx, run))
		require.Len(t, w.msgs, 1)
		assert.True(t, w.deadline)

		msg := w.msgs[0]
		assert.Equal(t, "tokyo-1", string(msg.Key))

		var event RunCompletedEvent
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		assert.Equal(t, EventTypeRunCompleted, event.EventType)
		assert.Equal(t, run.ID.String(), event.RunID)
		assert.Equal(t, "succeeded", event.Status)
		assert.Equal(t, 12, event.Lines)
		assert.True(t, event.Complete)
		assert.Empty(t, event.ErrorKind)
	})

	t.Run("failed run carries error kind", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaRunPublisher(w, time.Second, zap.NewNop())
		now := time.Now()
		run := integration.NewIngestionRun("tokyo-1", integration.MarketplaceYahoo, integration.RunModeManual, now.Add(-time.Hour), now, now)
		require.NoError(t, run.Start(now))
		run.Fail(integration.ErrAuthExpired, integration.RunStats{}, now)

		require.NoError(t, p.PublishRunCompleted(ctx, run))
		var event RunCompletedEvent
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
		assert.Equal(t, "failed", event.Status)
		assert.Equal(t, "auth_expired", event.ErrorKind)
	})

	t.Run("unfinished run is refused", func(t *testing.T) {
		w := &fakeWriter{}
		p := newKafkaRunPublisher(w, time.Second, zap.NewNop())
		now := time.Now()
		run := integration.NewIngestionRun("tokyo-1", integration.MarketplaceYahoo, integration.RunModeManual, now.Add(-time.Hour), now, now)

		assert.Error(t, p.PublishRunCompleted(ctx, run))
		assert.Empty(t, w.msgs)
	})

	t.Run("writer error is wrapped", func(t *testing.T) {
		writeErr := errors.New("leader not available")
		p := newKafkaRunPublisher(&fakeWriter{err: writeErr}, time.Second, zap.NewNop())
		assert.ErrorIs(t, p.PublishRunCompleted(ctx, finishedRun(t)), writeErr)
	})
}
