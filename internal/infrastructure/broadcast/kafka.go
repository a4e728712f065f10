package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
)

// KafkaTransport mirrors hub publishes onto one Kafka topic, keyed by the
// hub topic so all messages for a tenant or site land on the same
// partition in order.
type KafkaTransport struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaTransport(brokers []string, topic string, logger *zap.Logger) *KafkaTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = "attendance.alerts"
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaTransport{writer: writer, logger: logger}
}

func (t *KafkaTransport) PublishAlert(ctx context.Context, topic string, msg alert.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("alert encode: %w", err)
	}

	err = t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(topic),
		Value: payload,
		Time:  msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (t *KafkaTransport) Close() {
	if err := t.writer.Close(); err != nil {
		t.logger.Warn("kafka writer close failed", zap.Error(err))
	}
}
