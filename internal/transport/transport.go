package transport

import (
	"context"

	"github.com/akolanti/docsync/internal/domain/changeModel"
)

// Delivery is one message handed to a consumer. It must be settled exactly once.
type Delivery interface {
	Body() []byte
	MessageId() string
	RetryCount() int
	Ack() error
	Nack(requeue bool) error
}

type Publisher interface {
	Publish(ctx context.Context, msg changeModel.ChangeMessage) error
	Close() error
}

// Republisher puts a delivery back on the main queue with a new retry count.
type Republisher interface {
	Republish(ctx context.Context, d Delivery, retryCount int) error
}

type Subscriber interface {
	// Consume streams deliveries until ctx ends or the broker closes the channel.
	Consume(ctx context.Context) (<-chan Delivery, error)
}
