/*
Package events delivers leave.Event values produced by the engine.

PURPOSE:
  The engine returns events in leave.Outcome; it never publishes them. The
  HTTP adapter hands them to a Publisher once the operation has committed,
  so a failed publish can never roll back a ledger change.

PUBLISHERS:
  LogPublisher:   Writes each event as a structured zap entry
  KafkaPublisher: One Kafka message per event, keyed by request ID
  Multi:          Fans out to several publishers, collecting errors

MESSAGE FORMAT (Kafka):
  Topic:   configured (default "leave.requests")
  Key:     request ID, so every event of a request lands on one partition
  Value:   JSON encoding of leave.Event
  Headers: event_type, organization_id

SEE ALSO:
  - leave/events.go: Event types
  - api/handlers.go: Publishes after each successful transition
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

const DefaultTopic = "leave.requests"

// Publisher delivers committed events.
type Publisher interface {
	Publish(ctx context.Context, events ...leave.Event) error
}

// =============================================================================
// LOG PUBLISHER
// =============================================================================

type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("leave.events")}
}

func (p *LogPublisher) Publish(_ context.Context, events ...leave.Event) error {
	for _, e := range events {
		p.logger.Info("leave event",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("request_id", e.RequestID),
			zap.String("organization_id", e.OrganizationID),
			zap.String("user_id", e.UserID),
			zap.String("actor_id", e.ActorID),
			zap.String("status", string(e.Status)),
			zap.Int("days", e.Days),
			zap.Time("occurred_at", e.OccurredAt),
		)
	}
	return nil
}

// =============================================================================
// KAFKA PUBLISHER
// =============================================================================

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaWriter builds a writer for brokers with hash partitioning on the key.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: writer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...leave.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.topic,
			Key:   []byte(e.RequestID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "organization_id", Value: []byte(e.OrganizationID)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events ...leave.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
