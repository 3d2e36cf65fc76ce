package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultTopic receives one message per completed load.
const DefaultTopic = "weather.ingestion.runs"

// messageWriter abstracts kafka.Writer so publishing can be tested without a broker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes run events as JSON, keyed by run id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

// Publish sends ev. Callers treat failures as non-fatal.
func (p *KafkaPublisher) Publish(ctx context.Context, ev weather.RunEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(ev.Source)},
			{Key: "collection", Value: []byte(ev.Collection)},
		},
		Time: ev.FinishedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, weather.RunEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
