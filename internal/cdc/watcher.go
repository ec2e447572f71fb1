package cdc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/adapter"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/metrics"
	"github.com/akolanti/docsync/internal/transport"
	"github.com/akolanti/docsync/pkg/logger_i"
	"go.mongodb.org/mongo-driver/bson"
)

var ErrTooManyStreamErrors = errors.New("change stream failed too many times in a row")

// ChangeStream is the subset of a driver change stream the watcher polls.
type ChangeStream interface {
	TryNext(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	ResumeToken() bson.Raw
	Close(ctx context.Context) error
}

// StreamSource opens a change stream on one collection, resuming after token when it is set.
type StreamSource interface {
	Watch(ctx context.Context, collection string, operations []string, resumeAfter bson.Raw) (ChangeStream, error)
}

type Config struct {
	Source          StreamSource
	Publisher       transport.Publisher
	Collections     []string
	Operations      []string
	PollInterval    time.Duration
	MaxStreamErrors int
	Now             func() time.Time
}

type watchedStream struct {
	collection string
	stream     ChangeStream
	token      bson.Raw
	failures   int
}

// Watcher sweeps every collection stream in turn and publishes one message per change.
type Watcher struct {
	source          StreamSource
	publisher       transport.Publisher
	collections     []string
	operations      []string
	pollInterval    time.Duration
	maxStreamErrors int
	now             func() time.Time
	streams         []*watchedStream
	logger          *logger_i.Logger
}

func NewWatcher(cfg Config) *Watcher {
	w := &Watcher{
		source:          cfg.Source,
		publisher:       cfg.Publisher,
		collections:     cfg.Collections,
		operations:      cfg.Operations,
		pollInterval:    cfg.PollInterval,
		maxStreamErrors: cfg.MaxStreamErrors,
		now:             cfg.Now,
		logger:          logger_i.NewLogger("ChangeWatcher"),
	}
	if w.pollInterval <= 0 {
		w.pollInterval = config.WatchPollInterval
	}
	if w.maxStreamErrors <= 0 {
		w.maxStreamErrors = config.WatchMaxStreamErrors
	}
	if len(w.operations) == 0 {
		w.operations = []string{"insert", "update", "delete"}
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Open starts one stream per collection. Any failure closes what was opened and is returned.
func (w *Watcher) Open(ctx context.Context) error {
	for _, collection := range w.collections {
		stream, err := w.source.Watch(ctx, collection, w.operations, nil)
		if err != nil {
			w.Close(ctx)
			return fmt.Errorf("watch %s: %w", collection, err)
		}
		w.logger.Info("Watching collection", "collection", collection)
		w.streams = append(w.streams, &watchedStream{collection: collection, stream: stream})
	}
	return nil
}

// Run polls until ctx is cancelled (nil) or a stream keeps failing (ErrTooManyStreamErrors).
// Streams are closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.streams) == 0 {
		if err := w.Open(ctx); err != nil {
			return err
		}
	}
	defer w.Close(context.WithoutCancel(ctx))

	for {
		for _, ws := range w.streams {
			if ctx.Err() != nil {
				return nil
			}
			if err := w.poll(ctx, ws); err != nil {
				return err
			}
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// poll takes at most one event from the stream.
func (w *Watcher) poll(ctx context.Context, ws *watchedStream) error {
	if ws.stream == nil {
		return w.reopen(ctx, ws, nil)
	}

	if !ws.stream.TryNext(ctx) {
		if err := ws.stream.Err(); err != nil && ctx.Err() == nil {
			return w.reopen(ctx, ws, err)
		}
		ws.failures = 0
		ws.rememberToken()
		return nil
	}
	ws.failures = 0

	var event changeModel.ChangeEvent
	if err := ws.stream.Decode(&event); err != nil {
		w.logger.Error("could not decode change event", "collection", ws.collection, "error", err)
		ws.rememberToken()
		return nil
	}
	ws.rememberToken()

	msg, ok, err := adapter.ToChangeMessage(event, ws.collection, w.now())
	if !ok {
		w.logger.Warn("skipping unsupported change", "collection", ws.collection, "operationType", event.OperationType)
		return nil
	}
	if err != nil {
		w.logger.Error("skipping change without document id", "collection", ws.collection, "operationType", event.OperationType, "error", err)
		return nil
	}
	metrics.ChangeObserved(ws.collection, string(msg.Operation))
	w.publish(ctx, msg)
	return nil
}

// publish failures are not retried; the change is dropped and counted.
func (w *Watcher) publish(ctx context.Context, msg changeModel.ChangeMessage) {
	log := w.logger.With("traceId", msg.TraceId, "collection", msg.Collection, "documentId", msg.DocumentId)
	if err := w.publisher.Publish(ctx, msg); err != nil {
		metrics.ChangePublishFailed(msg.Collection)
		log.Error("could not publish change, dropping it", "operation", msg.Operation, "error", err)
		return
	}
	metrics.ChangePublished(msg.Collection)
	log.Info("change published", "operation", msg.Operation)
}

// reopen replaces a failed stream, resuming after the last token seen.
func (w *Watcher) reopen(ctx context.Context, ws *watchedStream, cause error) error {
	metrics.StreamError(ws.collection)
	ws.failures++
	log := w.logger.With("collection", ws.collection, "failures", ws.failures)
	if cause != nil {
		log.Error("change stream error", "error", cause)
	}
	if ws.failures >= w.maxStreamErrors {
		return fmt.Errorf("%w: %s", ErrTooManyStreamErrors, ws.collection)
	}

	if ws.stream != nil {
		_ = ws.stream.Close(context.WithoutCancel(ctx))
		ws.stream = nil
	}
	stream, err := w.source.Watch(ctx, ws.collection, w.operations, ws.token)
	if err != nil {
		log.Error("could not reopen change stream", "error", err)
		return nil
	}
	ws.stream = stream
	log.Info("change stream reopened", "resumed", ws.token != nil)
	return nil
}

func (ws *watchedStream) rememberToken() {
	if token := ws.stream.ResumeToken(); token != nil {
		ws.token = token
	}
}

func (w *Watcher) Close(ctx context.Context) {
	for _, ws := range w.streams {
		if ws.stream == nil {
			continue
		}
		if err := ws.stream.Close(ctx); err != nil {
			w.logger.Warn("error closing change stream", "collection", ws.collection, "error", err)
		}
		ws.stream = nil
	}
	w.logger.Info("change streams closed")
}
