package store

import (
	"context"
	"encoding/json"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/data/redisStore"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/pkg/logger_i"
)

const taskKeyPrefix = "task:"

type RedisTaskStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

func NewRedisTaskStore(store *redisStore.Store) *RedisTaskStore {
	return &RedisTaskStore{
		store:  store,
		logger: logger_i.NewLogger("TaskStore"),
	}
}

func (s *RedisTaskStore) SaveTask(ctx context.Context, task taskModel.Task) error {
	log := s.logger.WithTrace(ctx).With("taskId", task.Id)
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	err = s.store.Set(ctx, taskKeyPrefix+task.Id, data, config.RedisTaskStoreTTL)
	if err == nil {
		log.Debug("Saved task to Redis", "status", task.Status)
	}
	return err
}

func (s *RedisTaskStore) GetTask(ctx context.Context, taskId string) (taskModel.Task, bool) {
	var task taskModel.Task
	log := s.logger.WithTrace(ctx).With("taskId", taskId)

	val, err := s.store.Get(ctx, taskKeyPrefix+taskId)
	if s.store.IsNil(err) {
		return task, false
	} else if err != nil {
		log.Error("Error reading task from Redis", "error", err)
		return task, false
	}

	if err = json.Unmarshal([]byte(val), &task); err != nil {
		log.Error("Stored task is not valid json", "error", err)
		return task, false
	}
	return task, true
}

func (s *RedisTaskStore) DeleteTask(ctx context.Context, taskId string) {
	if err := s.store.Del(ctx, taskKeyPrefix+taskId); err != nil {
		s.logger.Error("Error deleting task from Redis", "taskId", taskId, "error", err)
		return
	}
	s.logger.Debug("Task deleted from Redis", "taskId", taskId)
}
