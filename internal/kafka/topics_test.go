package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissing(t *testing.T) {
	have := []string{"eventsnow.event.submitted", "other"}
	want := []string{"eventsnow.event.submitted", "eventsnow.event.moderated", "eventsnow.promo.paid"}
	assert.Equal(t, []string{"eventsnow.event.moderated", "eventsnow.promo.paid"}, missing(have, want))
	assert.Nil(t, missing(want, want))
}

func TestTopicHelpersNeedBrokers(t *testing.T) {
	_, err := ListTopics(context.Background(), nil)
	assert.EqualError(t, err, "no kafka brokers configured")
	_, err = MissingTopics(context.Background(), nil, []string{"x"})
	assert.Error(t, err)
}
