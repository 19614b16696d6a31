package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducer_NilWithoutBrokers(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewProducer(nil))
	assert.Nil(t, NewProducer([]string{}))
}

func TestNilProducer_IsNoOp(t *testing.T) {
	t.Parallel()

	var p *Producer
	assert.NoError(t, p.PublishEvent(context.Background(), TypeOrderCreated, "ORD-1", map[string]any{"orderId": "ORD-1"}))
	assert.NoError(t, p.Close())
}
