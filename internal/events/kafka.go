package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is an EventHandler that writes each event as a JSON message
// keyed by job id, so all events of one job land on the same partition.
type KafkaPublisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ EventHandler = (*KafkaPublisher)(nil)

// NewKafkaWriter creates a synchronous writer for brokers that waits for all
// in-sync replicas.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(writer MessageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: 10 * time.Second,
		logger:  logger.With("component", "kafka_publisher", "topic", topic),
	}
}

// HandleEvent implements EventHandler.
func (p *KafkaPublisher) HandleEvent(ctx context.Context, event *JobEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.JobID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	p.logger.DebugContext(ctx, "published job event",
		"event_id", event.ID,
		"event_type", event.Type,
		"job_id", event.JobID)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
