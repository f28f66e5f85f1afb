// Package broker publishes finished operations to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/txsociety/ton-agent/pkg/core"
)

const DefaultQueue = "ton-agent.operations"

type Config struct {
	URL     string
	Queue   string
	Durable bool
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url cannot be empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("can not connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("can not open amqp channel: %w", err)
	}
	_, err = ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("can not declare queue %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// Send publishes one operation as a persistent JSON message keyed by the operation id.
func (p *Publisher) Send(ctx context.Context, op core.OperationPrintable) error {
	if p == nil || p.ch == nil {
		return errors.New("amqp publisher is not initialized")
	}
	msg, err := Message(op)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
}

func Message(op core.OperationPrintable) (amqp.Publishing, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    op.ID,
		Type:         op.Kind,
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
