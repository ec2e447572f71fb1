package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/data/redisStore"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/pkg/logger_i"
)

const (
	pendingTasksKey       = "tasks:pending"
	processingTasksPrefix = "tasks:processing:"
	heartbeatPrefix       = "tasks:heartbeat:"
)

// RedisTaskQueue is a reliable list queue. A dequeued task is parked on this worker's
// processing list until Ack removes it. Recover puts leftovers back after a crash, both
// this worker's own and those of workers whose heartbeat has expired.
type RedisTaskQueue struct {
	store         *redisStore.Store
	workerId      string
	processingKey string
	heartbeatTTL  time.Duration
	logger        *logger_i.Logger
}

func NewRedisTaskQueue(store *redisStore.Store, workerId string) *RedisTaskQueue {
	return &RedisTaskQueue{
		store:         store,
		workerId:      workerId,
		processingKey: processingTasksPrefix + workerId,
		heartbeatTTL:  config.WorkerHeartbeatTTL,
		logger:        logger_i.NewLogger("TaskQueue").With("workerId", workerId),
	}
}

// Heartbeat marks this worker alive for heartbeatTTL. Pool calls it periodically.
func (q *RedisTaskQueue) Heartbeat(ctx context.Context) error {
	if err := q.store.Set(ctx, heartbeatPrefix+q.workerId, time.Now().UTC().Format(time.RFC3339), q.heartbeatTTL); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (q *RedisTaskQueue) Enqueue(ctx context.Context, task taskModel.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.store.ListPush(ctx, pendingTasksKey, data); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Id, err)
	}
	q.logger.WithTrace(ctx).Debug("task enqueued", "taskId", task.Id, "attempt", task.Attempt)
	return nil
}

func (q *RedisTaskQueue) Dequeue(ctx context.Context, wait time.Duration) (taskModel.Task, error) {
	var task taskModel.Task

	raw, err := q.store.ListBlockingMove(ctx, pendingTasksKey, q.processingKey, wait)
	if q.store.IsNil(err) {
		return task, taskModel.ErrQueueEmpty
	}
	if err != nil {
		return task, err
	}

	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// nothing can ever process it, drop it from the processing list
		q.logger.Error("dropping undecodable task", "error", err)
		if _, remErr := q.store.ListRemove(ctx, q.processingKey, raw); remErr != nil {
			q.logger.Error("could not drop undecodable task", "error", remErr)
		}
		return task, fmt.Errorf("decode task: %w", err)
	}
	task.Receipt = raw
	return task, nil
}

func (q *RedisTaskQueue) Ack(ctx context.Context, task taskModel.Task) error {
	if task.Receipt == "" {
		return fmt.Errorf("task %s has no receipt", task.Id)
	}
	removed, err := q.store.ListRemove(ctx, q.processingKey, task.Receipt)
	if err != nil {
		return fmt.Errorf("ack task %s: %w", task.Id, err)
	}
	if removed == 0 {
		q.logger.Warn("acked task was not in the processing list", "taskId", task.Id)
	}
	return nil
}

func (q *RedisTaskQueue) Recover(ctx context.Context) (int, error) {
	recovered, err := q.drain(ctx, q.processingKey)
	if err != nil {
		return recovered, err
	}
	if recovered > 0 {
		q.logger.Info("recovered unacknowledged tasks", "count", recovered)
	}

	orphans, err := q.ReapOrphans(ctx)
	return recovered + orphans, err
}

// ReapOrphans requeues the processing lists of other workers whose heartbeat expired,
// so a worker replaced under a new id does not strand its in-flight tasks.
func (q *RedisTaskQueue) ReapOrphans(ctx context.Context) (int, error) {
	keys, err := q.store.ScanKeys(ctx, processingTasksPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("list processing queues: %w", err)
	}

	reaped := 0
	for _, key := range keys {
		if key == q.processingKey {
			continue
		}
		owner := strings.TrimPrefix(key, processingTasksPrefix)
		alive, err := q.store.Exists(ctx, heartbeatPrefix+owner)
		if err != nil {
			return reaped, fmt.Errorf("check heartbeat of %s: %w", owner, err)
		}
		if alive {
			continue
		}
		n, err := q.drain(ctx, key)
		reaped += n
		if err != nil {
			return reaped, err
		}
		if n > 0 {
			q.logger.Warn("requeued tasks of a dead worker", "deadWorker", owner, "count", n)
		}
	}
	return reaped, nil
}

func (q *RedisTaskQueue) drain(ctx context.Context, processingKey string) (int, error) {
	moved := 0
	for {
		_, err := q.store.ListMoveBack(ctx, processingKey, pendingTasksKey)
		if q.store.IsNil(err) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover tasks from %s: %w", processingKey, err)
		}
		moved++
	}
}

// Len reports the number of tasks waiting to be picked up.
func (q *RedisTaskQueue) Len(ctx context.Context) (int64, error) {
	return q.store.ListLen(ctx, pendingTasksKey)
}
