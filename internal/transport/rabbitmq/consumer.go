package rabbitmq

import (
	"context"
	"fmt"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/transport"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscriber consumes the main queue with manual acknowledgements.
type Subscriber struct {
	client   *Client
	tag      string
	prefetch int
}

func NewSubscriber(client *Client, consumerTag string) *Subscriber {
	return &Subscriber{client: client, tag: consumerTag, prefetch: config.ConsumerPrefetch}
}

func (s *Subscriber) Consume(ctx context.Context) (<-chan transport.Delivery, error) {
	ch, err := s.client.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	raw, err := ch.ConsumeWithContext(ctx, s.client.queue, s.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", s.client.queue, err)
	}

	out := make(chan transport.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for d := range raw {
			select {
			case out <- delivery{d: d}:
			case <-ctx.Done():
				// unsettled, the broker redelivers it once the channel closes
				return
			}
		}
	}()
	return out, nil
}

type delivery struct {
	d amqp.Delivery
}

func (d delivery) Body() []byte {
	return d.d.Body
}

func (d delivery) MessageId() string {
	return d.d.MessageId
}

func (d delivery) RetryCount() int {
	return RetryCount(d.d.Headers)
}

func (d delivery) Ack() error {
	return d.d.Ack(false)
}

func (d delivery) Nack(requeue bool) error {
	return d.d.Nack(false, requeue)
}

// RetryCount reads the consumer retry header. AMQP tables carry integers in several widths.
func RetryCount(headers amqp.Table) int {
	switch v := headers[config.RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
