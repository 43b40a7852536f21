// Package messaging publishes ingestion run events to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// EventTypeRunCompleted is the event_type of a finished run, successful or not
const EventTypeRunCompleted = "ingestion.run.completed"

// RunCompletedEvent is the message value published for a finished run
type RunCompletedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	RunID       string    `json:"run_id"`
	ShopCode    string    `json:"shop_code"`
	Marketplace string    `json:"marketplace"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	WindowFrom  time.Time `json:"window_from"`
	WindowTo    time.Time `json:"window_to"`
	Complete    bool      `json:"complete"`
	Lines       int       `json:"lines_written"`
	RowErrors   int       `json:"row_errors"`
	Rejected    int       `json:"records_rejected"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// NewRunCompletedEvent builds the event of run
func NewRunCompletedEvent(run *integration.IngestionRun, now time.Time) RunCompletedEvent {
	return RunCompletedEvent{
		EventID:     uuid.NewString(),
		EventType:   EventTypeRunCompleted,
		OccurredAt:  now.UTC(),
		RunID:       run.ID.String(),
		ShopCode:    run.ShopCode,
		Marketplace: run.Marketplace.String(),
		Mode:        string(run.Mode),
		Status:      string(run.Status),
		WindowFrom:  run.WindowFrom.UTC(),
		WindowTo:    run.WindowTo.UTC(),
		Complete:    run.Stats.Complete,
		Lines:       run.Stats.LinesWritten,
		RowErrors:   run.Stats.RowErrors,
		Rejected:    run.Stats.RecordsRejected,
		ErrorKind:   string(run.ErrorKind),
		Error:       run.Error,
	}
}

// messageWriter is the subset of *kafka.Writer used here
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRunPublisher implements integration.RunPublisher.
// Messages are keyed by shop code so one shop's runs stay ordered.
type KafkaRunPublisher struct {
	w       messageWriter
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

var _ integration.RunPublisher = (*KafkaRunPublisher)(nil)

// NewKafkaRunPublisher creates a synchronous publisher that waits for all replicas
func NewKafkaRunPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaRunPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("messaging: at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("messaging: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaRunPublisher(w, cfg.WriteTimeout, logger), nil
}

func newKafkaRunPublisher(w messageWriter, timeout time.Duration, logger *zap.Logger) *KafkaRunPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaRunPublisher{
		w:       w,
		timeout: timeout,
		logger:  logger.Named("messaging"),
		now:     time.Now,
	}
}

// PublishRunCompleted writes one message for a finished run
func (p *KafkaRunPublisher) PublishRunCompleted(ctx context.Context, run *integration.IngestionRun) error {
	if !run.Status.IsFinal() {
		return fmt.Errorf("messaging: run %s is %s, not finished", run.ID, run.Status)
	}
	event := NewRunCompletedEvent(run, p.now())
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("messaging: marshal run event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.ShopCode),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(EventTypeRunCompleted)},
		},
	})
	if err != nil {
		return fmt.Errorf("messaging: publish run %s: %w", run.ID, err)
	}
	p.logger.Debug("Published run event",
		zap.String("run_id", event.RunID),
		zap.String("status", event.Status),
	)
	return nil
}

// Close flushes and closes the writer
func (p *KafkaRunPublisher) Close() error {
	return p.w.Close()
}
