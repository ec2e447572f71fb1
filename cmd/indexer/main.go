package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/consumer"
	"github.com/akolanti/docsync/internal/handlers"
	"github.com/akolanti/docsync/internal/server"
	"github.com/akolanti/docsync/internal/task"
	"github.com/akolanti/docsync/internal/transport/rabbitmq"
	"github.com/akolanti/docsync/internal/worker"
	"github.com/akolanti/docsync/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

const (
	roleAll      = "all"
	roleConsumer = "consumer"
	roleWorker   = "worker"
)

func main() {
	var role, listenAddr string
	flag.StringVar(&role, "role", roleAll, "what this process runs: all, consumer or worker")
	flag.StringVar(&listenAddr, "listen-addr", "", "ops server listen address (defaults to OPS_LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	logger_i.InitWith(cfg.LogLevel, cfg.LogFormat)
	logger := logger_i.NewLogger("indexer").With("role", role)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if listenAddr == "" {
		listenAddr = cfg.OpsListenAddr
	}
	if role != roleAll && role != roleConsumer && role != roleWorker {
		logger.Error("unknown role", "role", role)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, role, listenAddr, logger); err != nil {
		logger.Error("indexer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("indexer exited")
}

func run(ctx context.Context, cfg config.Config, role string, listenAddr string, logger *logger_i.Logger) error {
	stores, err := openStores(ctx, cfg, role == roleAll, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	tasks := task.InitTaskService(task.ServiceConfig{
		TaskStore:   stores.taskStore,
		TaskQueue:   stores.taskQueue,
		MaxAttempts: cfg.TaskMaxAttempts,
	})
	checks := stores.checks

	var pool *worker.Pool
	if role == roleAll || role == roleWorker {
		reindexer, closeReindex, err := buildReindexService(ctx, cfg, stores.locker, checks)
		if err != nil {
			return err
		}
		defer closeReindex()
		pool = worker.NewPool(worker.PoolConfig{
			Tasks:        tasks,
			Reindex:      reindexer,
			Concurrency:  cfg.WorkerConcurrency,
			TaskTimeout:  cfg.TaskTimeout,
			PollTimeout:  config.QueuePollTimeout,
			RetryBackoff: config.TaskRetryBackoff,
			MaxBackoff:   config.TaskMaxBackoff,
			CallTimeout:  cfg.StoreCallTimeout,

			HeartbeatInterval: config.WorkerHeartbeatInterval,
		})
	}

	var messageConsumer *consumer.Consumer
	var broker *rabbitmq.Client
	if role == roleAll || role == roleConsumer {
		broker, err = rabbitmq.Dial(cfg.AMQPURL(), cfg.RabbitQueue, cfg.RabbitDeadLetter)
		if err != nil {
			return fmt.Errorf("broker unavailable: %w", err)
		}
		defer broker.Close()
		checks["rabbitmq"] = broker.HealthCheck
		republisher, err := rabbitmq.NewPublisher(broker, cfg.PublishTimeout)
		if err != nil {
			return fmt.Errorf("open republish channel: %w", err)
		}
		defer republisher.Close()

		messageConsumer = consumer.NewConsumer(consumer.Config{
			Subscriber:  rabbitmq.NewSubscriber(broker, "indexer-"+cfg.WorkerId),
			Republisher: republisher,
			Tasks:       tasks,
			MaxRetries:  cfg.ConsumerMaxRetries,
		})
	}

	ops := server.NewServer(listenAddr, cfg.OpsAuthToken, handlers.NewHandler(tasks, checks))

	group, groupCtx := errgroup.WithContext(ctx)
	if pool != nil {
		pool.Start(groupCtx)
		group.Go(func() error {
			<-groupCtx.Done()
			pool.Stop()
			return nil
		})
	}
	if messageConsumer != nil {
		group.Go(func() error {
			return messageConsumer.Run(groupCtx)
		})
		group.Go(func() error {
			return broker.WatchConnection(groupCtx)
		})
	}
	group.Go(ops.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	logger.Info("indexer running", "listen", listenAddr)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
