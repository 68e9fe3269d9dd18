package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusfix/backend/internal/models"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// messageWriter is the part of *kafka.Writer the emitter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes each notification as JSON keyed by recipient so one
// user's notifications stay ordered on a partition.
type KafkaEmitter struct {
	topic  string
	writer messageWriter
}

func NewKafkaEmitter(cfg KafkaConfig) (*KafkaEmitter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("KAFKA_NOTIFICATION_TOPIC is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaEmitter{topic: cfg.Topic, writer: w}, nil
}

func (k *KafkaEmitter) Emit(ctx context.Context, n models.Notification) error {
	if k == nil || k.writer == nil {
		return errors.New("kafka emitter not initialized")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	ctx, span := otel.Tracer("notify").Start(ctx, "kafka.produce")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", k.topic),
		attribute.String("notification.type", n.Type),
	)
	defer span.End()

	value, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipientKey(n)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "notification_id", Value: []byte(n.ID)},
		},
	})
}

func (k *KafkaEmitter) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func recipientKey(n models.Notification) string {
	if n.UserID != "" {
		return "user:" + n.UserID
	}
	return "role:" + n.Role
}
