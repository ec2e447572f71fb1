package worker

import (
	"context"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/metrics"
)

func (p *Pool) executeTask(ctx context.Context, current taskModel.Task) {
	start := time.Now()
	defer func() {
		metrics.CaptureTaskMetrics(string(current.Status), time.Since(start))
	}()

	ctxTrace := context.WithValue(ctx, config.TRACE_ID_KEY, current.TraceId)
	taskCtx, cancel := context.WithTimeout(ctxTrace, p.taskTimeout)
	defer cancel()
	log := p.logger.WithTrace(ctxTrace).With("taskId", current.Id, "attempt", current.Attempt)
	log.Debug("Processing task", "document", current.DocumentKey(), "operation", current.Message.Operation)

	current.Status = taskModel.TaskStatusRunning
	p.saveTaskState(ctxTrace, current)

	current = p.reindex.Reindex(taskCtx, current)
	current.EndTime = time.Now()

	if current.Status == taskModel.TaskStatusError && current.Error.Retry && current.Attempt < current.MaxAttempts {
		delay := p.backoff(current.Attempt)
		log.Warn("task failed, retrying", "code", current.Error.Code, "error", current.Error.Message, "in", delay)
		p.saveTaskState(ctxTrace, current)

		if !sleepCtx(ctx, delay) {
			// left unacknowledged, the queue hands it out again after recovery
			return
		}
		if _, err := p.tasks.Resubmit(ctxTrace, current); err != nil {
			log.Error("could not resubmit task", "error", err)
			return
		}
		p.ack(ctxTrace, current)
		return
	}

	if current.Status == taskModel.TaskStatusError {
		log.Error("task failed permanently", "code", current.Error.Code, "error", current.Error.Message)
	} else {
		log.Info("task finished", "step", current.CurrentStep, "chunks", current.ChunkCount)
	}
	p.saveTaskState(ctxTrace, current)
	p.ack(ctxTrace, current)
}

// backoff doubles per attempt, capped at maxBackoff.
func (p *Pool) backoff(attempt int) time.Duration {
	delay := p.retryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	return min(delay, p.maxBackoff)
}

// ack and status writes must land even when the pool is shutting down.
func (p *Pool) ack(ctx context.Context, current taskModel.Task) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.callTimeout)
	defer cancel()
	if err := p.tasks.TaskQueue.Ack(ackCtx, current); err != nil {
		p.logger.WithTrace(ctx).Error("Failed to ack task", "taskId", current.Id, "err", err)
	}
}

func (p *Pool) saveTaskState(ctx context.Context, current taskModel.Task) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.callTimeout)
	defer cancel()
	if err := p.tasks.TaskStore.SaveTask(saveCtx, current); err != nil {
		p.logger.WithTrace(ctx).Error("Failed to update task status", "taskId", current.Id, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
