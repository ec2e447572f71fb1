package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/metrics"
	"github.com/akolanti/docsync/internal/reindex"
	"github.com/akolanti/docsync/internal/task"
	"github.com/akolanti/docsync/pkg/logger_i"
)

type PoolConfig struct {
	Tasks        *task.Service
	Reindex      reindex.Service
	Concurrency  int
	TaskTimeout  time.Duration
	PollTimeout  time.Duration
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	CallTimeout  time.Duration

	HeartbeatInterval time.Duration
}

// Pool runs a fixed number of workers pulling from the task queue.
type Pool struct {
	tasks        *task.Service
	reindex      reindex.Service
	concurrency  int
	taskTimeout  time.Duration
	pollTimeout  time.Duration
	retryBackoff time.Duration
	maxBackoff   time.Duration
	callTimeout  time.Duration

	heartbeatInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logger_i.Logger
}

func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		tasks:        cfg.Tasks,
		reindex:      cfg.Reindex,
		concurrency:  cfg.Concurrency,
		taskTimeout:  cfg.TaskTimeout,
		pollTimeout:  cfg.PollTimeout,
		retryBackoff: cfg.RetryBackoff,
		maxBackoff:   cfg.MaxBackoff,
		callTimeout:  cfg.CallTimeout,

		heartbeatInterval: cfg.HeartbeatInterval,
		logger:            logger_i.NewLogger("WorkerPool"),
	}
	if p.concurrency <= 0 {
		p.concurrency = config.WorkerConcurrency
	}
	if p.taskTimeout <= 0 {
		p.taskTimeout = config.TaskTimeout
	}
	if p.pollTimeout <= 0 {
		p.pollTimeout = config.QueuePollTimeout
	}
	if p.retryBackoff <= 0 {
		p.retryBackoff = config.TaskRetryBackoff
	}
	if p.maxBackoff <= 0 {
		p.maxBackoff = config.TaskMaxBackoff
	}
	if p.callTimeout <= 0 {
		p.callTimeout = config.StoreCallTimeout
	}
	if p.heartbeatInterval <= 0 {
		p.heartbeatInterval = config.WorkerHeartbeatInterval
	}
	return p
}

// Start requeues tasks left in flight by a previous run and then launches the workers.
// It returns immediately; use Stop or cancel ctx to end the pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	keeper, shared := p.tasks.TaskQueue.(taskModel.QueueKeeper)
	if shared {
		p.heartbeat(ctx, keeper)
	}

	recoverCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	if n, err := p.tasks.TaskQueue.Recover(recoverCtx); err != nil {
		p.logger.Warn("could not recover in-flight tasks", "error", err)
	} else if n > 0 {
		p.logger.Info("recovered in-flight tasks", "count", n)
	}
	cancel()

	if shared {
		p.wg.Add(1)
		go p.keepAlive(ctx, keeper)
	}

	p.logger.Info("Initializing worker pool", "workers", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight tasks to settle.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	metrics.IncrementActiveWorkerCount()
	defer metrics.DecrementActiveWorkerCount()

	log := p.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			log.Debug("Stop worker signal received")
			return
		}
		current, err := p.tasks.TaskQueue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if errors.Is(err, taskModel.ErrQueueEmpty) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Error("dequeue failed", "error", err)
			if !sleepCtx(ctx, p.retryBackoff) {
				return
			}
			continue
		}
		metrics.DecrementTasksInQueue()
		p.executeTask(ctx, current)
	}
}

// keepAlive refreshes the heartbeat and requeues tasks stranded by dead peers until ctx ends.
func (p *Pool) keepAlive(ctx context.Context, keeper taskModel.QueueKeeper) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.heartbeat(ctx, keeper)
			reapCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			n, err := keeper.ReapOrphans(reapCtx)
			cancel()
			if err != nil {
				p.logger.Warn("could not reap orphaned tasks", "error", err)
			} else if n > 0 {
				p.logger.Info("requeued orphaned tasks", "count", n)
			}
		}
	}
}

func (p *Pool) heartbeat(ctx context.Context, keeper taskModel.QueueKeeper) {
	beatCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	if err := keeper.Heartbeat(beatCtx); err != nil {
		p.logger.Warn("heartbeat failed", "error", err)
	}
}
