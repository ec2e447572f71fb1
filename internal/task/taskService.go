package task

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/metrics"
	"github.com/akolanti/docsync/pkg/logger_i"
)

// Service is the dispatch boundary: the consumer submits, the worker pool executes.
type Service struct {
	TaskStore   taskModel.TaskStore
	TaskQueue   taskModel.TaskQueue
	MaxAttempts int
	now         func() time.Time
	logger      *logger_i.Logger
}

type ServiceConfig struct {
	TaskStore   taskModel.TaskStore
	TaskQueue   taskModel.TaskQueue
	MaxAttempts int
}

func InitTaskService(cfg ServiceConfig) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.TaskMaxAttempts
	}
	return &Service{
		TaskStore:   cfg.TaskStore,
		TaskQueue:   cfg.TaskQueue,
		MaxAttempts: maxAttempts,
		now:         time.Now,
		logger:      logger_i.NewLogger("TaskService"),
	}
}

// Submit records a new task for msg and hands it to the queue. Only a failed enqueue is an error;
// the status record is best effort.
func (s *Service) Submit(ctx context.Context, msg changeModel.ChangeMessage) (taskModel.Task, error) {
	traceId := msg.TraceId
	if traceId == "" {
		traceId = utils.GetNewUUID()
	}
	task := taskModel.Task{
		Id:          utils.GetNewUUID(),
		TraceId:     traceId,
		Message:     msg,
		Attempt:     1,
		MaxAttempts: s.MaxAttempts,
		Status:      taskModel.TaskStatusQueued,
		CurrentStep: taskModel.Start,
		CreatedTime: s.now(),
	}
	log := s.logger.With("traceId", traceId, "taskId", task.Id)

	if err := s.TaskStore.SaveTask(ctx, task); err != nil {
		log.Warn("could not save task status", "error", err)
	}
	if err := s.TaskQueue.Enqueue(ctx, task); err != nil {
		log.Error("could not enqueue task", "error", err)
		return task, fmt.Errorf("submit task for %s: %w", task.DocumentKey(), err)
	}

	metrics.IncrementTasksInQueue()
	log.Info("task submitted", "operation", msg.Operation, "document", task.DocumentKey())
	return task, nil
}

// Resubmit puts a failed task back on the queue as its next attempt.
func (s *Service) Resubmit(ctx context.Context, task taskModel.Task) (taskModel.Task, error) {
	next := task
	next.Attempt = task.Attempt + 1
	next.Status = taskModel.TaskStatusRetrying
	next.Receipt = ""
	next.EndTime = time.Time{}

	if err := s.TaskStore.SaveTask(ctx, next); err != nil {
		s.logger.WithTrace(ctx).Warn("could not save task status", "taskId", task.Id, "error", err)
	}
	if err := s.TaskQueue.Enqueue(ctx, next); err != nil {
		return task, fmt.Errorf("resubmit task %s: %w", task.Id, err)
	}
	metrics.IncrementTasksInQueue()
	metrics.TaskRetried()
	return next, nil
}

func (s *Service) GetTask(ctx context.Context, taskId string) (taskModel.Task, bool) {
	return s.TaskStore.GetTask(ctx, taskId)
}
