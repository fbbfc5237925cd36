package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsnow/internal/logger"
	"eventsnow/internal/models"
)

func TestLocalBusDeliversToSubscribers(t *testing.T) {
	bus := NewLocalBus(logger.NewNop())

	var got []models.PromoPaidEvent
	bus.Subscribe("eventsnow.promo.paid", func(ctx context.Context, value []byte) error {
		var ev models.PromoPaidEvent
		require.NoError(t, json.Unmarshal(value, &ev))
		got = append(got, ev)
		return nil
	})
	bus.Subscribe("eventsnow.promo.paid", func(ctx context.Context, value []byte) error {
		return errors.New("second subscriber fails")
	})

	err := bus.Publish(context.Background(), "eventsnow.promo.paid", "7", models.PromoPaidEvent{OrderID: 7, EventID: 3, Service: "top"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].OrderID)
	assert.Equal(t, "top", got[0].Service)

	// topics without subscribers are dropped silently
	assert.NoError(t, bus.Publish(context.Background(), "other", "1", map[string]int{"a": 1}))
}

func TestLocalBusRejectsUnencodablePayload(t *testing.T) {
	bus := NewLocalBus(logger.NewNop())
	err := bus.Publish(context.Background(), "t", "k", make(chan int))
	assert.Error(t, err)
}
