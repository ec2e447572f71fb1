package store

import (
	"context"
	"sync"

	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/pkg/logger_i"
)

type InMemoryTaskStore struct {
	taskMutex *sync.RWMutex
	taskMap   map[string]taskModel.Task
	logger    *logger_i.Logger
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		taskMutex: new(sync.RWMutex),
		taskMap:   make(map[string]taskModel.Task),
		logger:    logger_i.NewLogger("InMem TaskStore"),
	}
}

func (store *InMemoryTaskStore) SaveTask(ctx context.Context, task taskModel.Task) error {
	store.taskMutex.Lock()
	defer store.taskMutex.Unlock()
	store.taskMap[task.Id] = task
	store.logger.Debug("Saved task to store", "taskId", task.Id, "status", task.Status)
	return nil
}

func (store *InMemoryTaskStore) GetTask(ctx context.Context, taskId string) (taskModel.Task, bool) {
	store.taskMutex.RLock()
	defer store.taskMutex.RUnlock()
	result, found := store.taskMap[taskId]
	return result, found
}

func (store *InMemoryTaskStore) DeleteTask(ctx context.Context, taskId string) {
	store.taskMutex.Lock()
	defer store.taskMutex.Unlock()
	delete(store.taskMap, taskId)
}
