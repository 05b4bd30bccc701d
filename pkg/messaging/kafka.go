package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sapliy/rental-ecosystem/pkg/observability"
	"github.com/segmentio/kafka-go"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish writes one message. Messages with the same key land on the same partition,
// so keying by user keeps a user's events ordered.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *observability.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, logger *observability.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}),
		logger: logger.With("component", "kafka", "topic", topic),
	}
}

// Consume reads until ctx is cancelled. Offsets are committed after the handler
// returns, even on handler error: a poison message must not block the partition.
func (c *KafkaConsumer) Consume(ctx context.Context, handler func(ctx context.Context, key string, value []byte) error) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("error while reading message from kafka", "error", err)
			continue
		}

		if err := handler(ctx, string(m.Key), m.Value); err != nil {
			c.logger.Error("error handling message", "offset", m.Offset, "partition", m.Partition, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit offset", "offset", m.Offset, "error", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
