package store

import (
	"context"
	"time"

	"github.com/akolanti/docsync/internal/domain/taskModel"
)

// InMemoryTaskQueue is the fallback queue for a single process. Tasks do not survive a restart.
type InMemoryTaskQueue struct {
	tasks chan taskModel.Task
}

func NewInMemoryTaskQueue(size int) *InMemoryTaskQueue {
	return &InMemoryTaskQueue{tasks: make(chan taskModel.Task, size)}
}

func (q *InMemoryTaskQueue) Enqueue(ctx context.Context, task taskModel.Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryTaskQueue) Dequeue(ctx context.Context, wait time.Duration) (taskModel.Task, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case task := <-q.tasks:
		return task, nil
	case <-timer.C:
		return taskModel.Task{}, taskModel.ErrQueueEmpty
	case <-ctx.Done():
		return taskModel.Task{}, ctx.Err()
	}
}

func (q *InMemoryTaskQueue) Ack(ctx context.Context, task taskModel.Task) error {
	return nil
}

func (q *InMemoryTaskQueue) Recover(ctx context.Context) (int, error) {
	return 0, nil
}

func (q *InMemoryTaskQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.tasks)), nil
}
