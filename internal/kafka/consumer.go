package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"eventsnow/internal/logger"
)

// Handler receives one JSON-encoded message value.
type Handler func(ctx context.Context, value []byte) error

type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, topic: topic, log: log}
}

// Run reads until ctx is canceled. Handler errors are logged and the message is committed anyway.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.LogKafka("CONSUME", c.topic, "consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.topic, err))
			continue
		}
		if err := handle(ctx, msg.Value); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Handler for %s failed at offset %d: %v", c.topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
