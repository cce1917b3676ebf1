package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"safety-service/internal/models"
)

// Producer publishes alert events keyed by tourist code so one tourist's
// events stay ordered on a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *Producer) PublishAlert(ctx context.Context, key string, event models.AlertEvent) error {
	msg, err := EncodeAlert(key, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert %d: %w", event.Alert.ID, err)
	}
	return nil
}

// EncodeAlert builds the Kafka record for an alert event.
func EncodeAlert(key string, event models.AlertEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode alert %d: %w", event.Alert.ID, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
