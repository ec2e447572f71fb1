package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/pkg/logger_i"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrConnectionLost = errors.New("rabbitmq connection lost")

// Client owns the broker connection. Publisher and Consumer each open their own channel on it.
type Client struct {
	conn       *amqp.Connection
	queue      string
	deadLetter bool
	logger     *logger_i.Logger
}

// Dial connects and declares the durable queue. With deadLetter set the queue routes
// rejected messages to <queue>.dlq; RabbitMQ refuses to redeclare an existing queue with
// different arguments, so a queue created without them needs deadLetter off or a migration.
func Dial(url string, queue string, deadLetter bool) (*Client, error) {
	logger := logger_i.NewLogger("RabbitMQ").With("queue", queue)

	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: config.RabbitHeartbeat})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	c := &Client{conn: conn, queue: queue, deadLetter: deadLetter, logger: logger}
	if !deadLetter {
		logger.Warn("dead lettering disabled, rejected messages are discarded")
	}

	if err := c.declareTopology(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("RabbitMQ connected")
	return c, nil
}

func (c *Client) declareTopology() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if c.deadLetter {
		if _, err := ch.QueueDeclare(deadLetterQueue(c.queue), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead letter queue: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, queueArgs(c.queue, c.deadLetter)); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	return nil
}

// WatchConnection blocks until ctx ends or the broker drops the connection.
// It returns nil on ctx end or a clean Close, ErrConnectionLost otherwise.
func (c *Client) WatchConnection(ctx context.Context) error {
	return waitForClose(ctx, c.conn.NotifyClose(make(chan *amqp.Error, 1)))
}

func (c *Client) HealthCheck(ctx context.Context) error {
	if c.conn.IsClosed() {
		return ErrConnectionLost
	}
	return nil
}

func waitForClose(ctx context.Context, notify <-chan *amqp.Error) error {
	select {
	case <-ctx.Done():
		return nil
	case amqpErr, ok := <-notify:
		if !ok || amqpErr == nil {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConnectionLost, amqpErr.Error())
	}
}

func (c *Client) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Error("Error closing rabbitmq connection", "error", err)
		return err
	}
	c.logger.Info("RabbitMQ connection closed")
	return nil
}

func deadLetterQueue(queue string) string {
	return queue + config.DeadLetterSuffix
}

// rejected messages are routed through the default exchange to <queue>.dlq
func queueArgs(queue string, deadLetter bool) amqp.Table {
	if !deadLetter {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadLetterQueue(queue),
	}
}
