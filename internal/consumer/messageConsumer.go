package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/metrics"
	"github.com/akolanti/docsync/internal/transport"
	"github.com/akolanti/docsync/pkg/logger_i"
)

type Outcome string

const (
	OutcomeAcked        Outcome = "acked"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeRetried      Outcome = "retried"
	OutcomeRequeued     Outcome = "requeued"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed by broker")

// Submitter hands a validated change to the dispatch layer.
type Submitter interface {
	Submit(ctx context.Context, msg changeModel.ChangeMessage) (taskModel.Task, error)
}

type Config struct {
	Subscriber  transport.Subscriber
	Republisher transport.Republisher
	Tasks       Submitter
	MaxRetries  int
}

// Consumer turns queue deliveries into tasks. It acks once the task is submitted and never
// waits for the reindex itself.
type Consumer struct {
	subscriber  transport.Subscriber
	republisher transport.Republisher
	tasks       Submitter
	maxRetries  int
	logger      *logger_i.Logger
}

func NewConsumer(cfg Config) *Consumer {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = config.ConsumerMaxRetries
	}
	return &Consumer{
		subscriber:  cfg.Subscriber,
		republisher: cfg.Republisher,
		tasks:       cfg.Tasks,
		maxRetries:  maxRetries,
		logger:      logger_i.NewLogger("MessageConsumer"),
	}
}

// Run blocks until ctx ends (nil) or the broker stops delivering (error).
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.subscriber.Consume(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("Waiting for change messages")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			c.HandleDelivery(ctx, d)
		}
	}
}

// HandleDelivery settles exactly one delivery and reports what happened to it.
func (c *Consumer) HandleDelivery(ctx context.Context, d transport.Delivery) Outcome {
	outcome := c.handle(ctx, d)
	metrics.MessageOutcome(string(outcome))
	return outcome
}

func (c *Consumer) handle(ctx context.Context, d transport.Delivery) Outcome {
	log := c.logger.With("messageId", d.MessageId())

	msg, err := decode(d.Body())
	if err != nil {
		log.Error("rejecting malformed change message", "error", err)
		return c.deadLetter(d, log)
	}
	log = log.With("traceId", msg.TraceId, "collection", msg.Collection, "documentId", msg.DocumentId)

	if _, err := c.tasks.Submit(ctx, msg); err != nil {
		return c.retry(ctx, d, err, log)
	}

	if err := d.Ack(); err != nil {
		log.Error("ack failed", "error", err)
	}
	log.Debug("change message accepted", "operation", msg.Operation)
	return OutcomeAcked
}

func (c *Consumer) retry(ctx context.Context, d transport.Delivery, cause error, log *logger_i.Logger) Outcome {
	retries := d.RetryCount()
	if retries >= c.maxRetries {
		log.Error("giving up on change message", "retries", retries, "error", cause)
		return c.deadLetter(d, log)
	}

	if err := c.republisher.Republish(ctx, d, retries+1); err != nil {
		log.Error("republish failed, requeueing", "error", err, "cause", cause)
		if nackErr := d.Nack(true); nackErr != nil {
			log.Error("nack failed", "error", nackErr)
		}
		return OutcomeRequeued
	}

	log.Warn("task submission failed, message republished", "retry", retries+1, "error", cause)
	if err := d.Ack(); err != nil {
		log.Error("ack failed", "error", err)
	}
	return OutcomeRetried
}

func (c *Consumer) deadLetter(d transport.Delivery, log *logger_i.Logger) Outcome {
	if err := d.Nack(false); err != nil {
		log.Error("nack failed", "error", err)
	}
	return OutcomeDeadLettered
}

func decode(body []byte) (changeModel.ChangeMessage, error) {
	var msg changeModel.ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("decode change message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}
