package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"eventsnow/internal/logger"
)

// LocalBus delivers published payloads to in-process subscribers. It stands in
// for Kafka when KAFKA_ENABLED is false so the same handlers run either way.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

func NewLocalBus(log *logger.Logger) *LocalBus {
	return &LocalBus{handlers: make(map[string][]Handler), log: log}
}

func (b *LocalBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish runs every subscriber synchronously. Subscriber errors are logged, not returned.
func (b *LocalBus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, value); err != nil {
			b.log.Error("KAFKA", fmt.Sprintf("Local handler for %s (key=%s) failed: %v", topic, key, err))
		}
	}
	return nil
}
