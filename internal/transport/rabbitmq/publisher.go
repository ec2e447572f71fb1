package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/transport"
	"github.com/akolanti/docsync/pkg/logger_i"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrPublishNacked = errors.New("broker did not confirm the message")

// Publisher sends persistent messages on a confirm mode channel. A channel is not
// safe for concurrent publishes, so calls are serialized.
type Publisher struct {
	mu      sync.Mutex
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
	logger  *logger_i.Logger
}

func NewPublisher(client *Client, timeout time.Duration) (*Publisher, error) {
	ch, err := client.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if timeout <= 0 {
		timeout = config.PublishTimeout
	}
	return &Publisher{
		ch:      ch,
		queue:   client.queue,
		timeout: timeout,
		logger:  logger_i.NewLogger("Publisher").With("queue", client.queue),
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg changeModel.ChangeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode change message: %w", err)
	}
	return p.publish(ctx, body, msg.TraceId, nil)
}

// Republish copies the delivery body to the main queue carrying the new retry count.
func (p *Publisher) Republish(ctx context.Context, d transport.Delivery, retryCount int) error {
	headers := amqp.Table{config.RetryCountHeader: int32(retryCount)}
	return p.publish(ctx, d.Body(), d.MessageId(), headers)
}

func (p *Publisher) publish(ctx context.Context, body []byte, messageId string, headers amqp.Table) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageId,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}
