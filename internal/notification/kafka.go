package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"kalium.io/kalium/internal/config"
)

// MessageWriter is the producer used by KafkaSink.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Message is the JSON value published for every notification.
type Message struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// KafkaSink publishes notifications to a topic keyed by user ID so one
// user's notifications stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaSink creates a traced writer for cfg. The trace context of the
// notifying request travels in the message headers.
func NewKafkaSink(cfg config.KafkaConfig, tp trace.TracerProvider) (*KafkaSink, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(cfg.Topic),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka writer: %w", err)
	}
	return NewKafkaSinkWithWriter(w), nil
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w, now: func() time.Time { return time.Now().UTC() }}
}

// Notify implements Sink.
func (s *KafkaSink) Notify(ctx context.Context, userID, kind, message string) error {
	value, err := json.Marshal(Message{UserID: userID, Kind: kind, Message: message, CreatedAt: s.now()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.writer.WriteMessage(ctx, kafka.Message{Key: []byte(userID), Value: value}); err != nil {
		return fmt.Errorf("publish notification for %s: %w", userID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ Sink = (*KafkaSink)(nil)
