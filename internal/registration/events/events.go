// Package events announces completed registrations to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TypeRegistrationCompleted is the event type header value.
const TypeRegistrationCompleted = "registration.completed"

// RegistrationCompleted is published once per successful wizard.
type RegistrationCompleted struct {
	EventID        uuid.UUID `json:"event_id"`
	RegistrationID string    `json:"registration_id"`
	Status         string    `json:"status"`
	RegionID       string    `json:"region_id"`
	Citizenship    string    `json:"citizenship"`
	RequestID      string    `json:"request_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits registration events.
type Publisher interface {
	Publish(ctx context.Context, event RegistrationCompleted) error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RegistrationCompleted) error { return nil }

// MemoryPublisher keeps events in memory for local runs and tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []RegistrationCompleted
}

func (p *MemoryPublisher) Publish(_ context.Context, event RegistrationCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []RegistrationCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RegistrationCompleted(nil), p.events...)
}

// recordDeliveryTimeout caps how long a record may wait for delivery,
// including retries, when brokers are unreachable.
const recordDeliveryTimeout = 10 * time.Second

// producer is the subset of *kgo.Client used for publishing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher writes events as JSON records keyed by registration id, so
// all events of one registration land on the same partition.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
		kgo.RecordDeliveryTimeout(recordDeliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return newKafkaPublisher(client, topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event RegistrationCompleted) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", TypeRegistrationCompleted, err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.RegistrationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(TypeRegistrationCompleted)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", TypeRegistrationCompleted, err)
	}
	p.logger.DebugContext(ctx, "registration event published",
		"registration_id", event.RegistrationID,
		"topic", p.topic,
	)
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
