package broker

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/txsociety/ton-agent/pkg/core"
)

func TestMessage(t *testing.T) {
	op := core.OperationPrintable{ID: "0190b3c2", Kind: "deposit", Status: "confirmed", Seqno: 4}
	msg, err := Message(op)
	require.NoError(t, err)
	assert.Equal(t, "0190b3c2", msg.MessageId)
	assert.Equal(t, "deposit", msg.Type)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var decoded core.OperationPrintable
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, op, decoded)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	assert.Error(t, p.Send(context.Background(), core.OperationPrintable{}))
	assert.NoError(t, p.Close())
}
