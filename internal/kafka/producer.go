package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"eventsnow/internal/logger"
)

// Publisher emits domain events. Payloads are encoded as JSON.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

type Producer struct {
	Writer  *kafka.Writer
	brokers []string
	log     *logger.Logger
}

// NewProducer writes to any topic; the topic is chosen per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
	}
	return &Producer{Writer: writer, brokers: brokers, log: log}
}

// Publish writes one message; when the write fails it creates the topic and retries once.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value}
	err = p.Writer.WriteMessages(ctx, msg)
	if err == nil {
		p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))
		return nil
	}

	p.log.Warn("KAFKA", fmt.Sprintf("Publish to %s failed, ensuring topic: %v", topic, err))
	if terr := CreateTopicIfNotExists(p.brokers, topic, p.log); terr != nil {
		return fmt.Errorf("publish to %s: %w (create topic: %v)", topic, err, terr)
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s after topic creation: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s after retry", key))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
