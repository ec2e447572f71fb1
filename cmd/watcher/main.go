package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/akolanti/docsync/internal/cdc"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/source/mongoSource"
	"github.com/akolanti/docsync/internal/transport/rabbitmq"
	"github.com/akolanti/docsync/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	logger_i.InitWith(cfg.LogLevel, cfg.LogFormat)
	logger := logger_i.NewLogger("watcher")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := mongoSource.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Error("source store unavailable", "error", err)
		os.Exit(1)
	}

	broker, err := rabbitmq.Dial(cfg.AMQPURL(), cfg.RabbitQueue, cfg.RabbitDeadLetter)
	if err != nil {
		logger.Error("broker unavailable", "error", err)
		closeSource(source)
		os.Exit(1)
	}
	publisher, err := rabbitmq.NewPublisher(broker, cfg.PublishTimeout)
	if err != nil {
		logger.Error("could not open publisher", "error", err)
		_ = broker.Close()
		closeSource(source)
		os.Exit(1)
	}

	watcher := cdc.NewWatcher(cdc.Config{
		Source:          source,
		Publisher:       publisher,
		Collections:     cfg.Collections,
		Operations:      cfg.WatchOperations,
		PollInterval:    cfg.WatchPollInterval,
		MaxStreamErrors: cfg.WatchMaxStreamErrors,
	})

	exitCode := 0
	if err := watcher.Open(ctx); err != nil {
		logger.Error("could not open change streams", "error", err)
		exitCode = 1
	} else if err := runUntilBrokerLost(ctx, watcher, broker); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher stopped", "error", err)
		exitCode = 1
	}

	_ = publisher.Close()
	_ = broker.Close()
	closeSource(source)
	logger.Info("watcher exited")
	os.Exit(exitCode)
}

// runUntilBrokerLost runs the watcher and stops it when the broker connection drops,
// since every later publish would fail.
func runUntilBrokerLost(ctx context.Context, watcher *cdc.Watcher, broker *rabbitmq.Client) error {
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return broker.WatchConnection(groupCtx)
	})
	group.Go(func() error {
		defer stopRun()
		return watcher.Run(groupCtx)
	})
	return group.Wait()
}

func closeSource(source *mongoSource.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()
	_ = source.Close(ctx)
}
