package taskModel

import (
	"context"
	"errors"
	"time"

	"github.com/akolanti/docsync/internal/domain/changeModel"
)

type TaskStatus string
type InternalStatus string

const (
	TaskStatusQueued   TaskStatus = "QUEUED"
	TaskStatusRunning  TaskStatus = "RUNNING"
	TaskStatusRetrying TaskStatus = "RETRYING"
	TaskStatusComplete TaskStatus = "COMPLETE"
	TaskStatusError    TaskStatus = "Error"

	// reindex state machine
	Start                     InternalStatus = "Start"
	FetchOrUseEmbeddedPayload InternalStatus = "FetchOrUseEmbeddedPayload"
	AcquireDocumentLock       InternalStatus = "AcquireDocumentLock"
	DeleteExistingChunks      InternalStatus = "DeleteExistingChunks"
	Deleted                   InternalStatus = "Deleted"
	ChunkContent              InternalStatus = "ChunkContent"
	EmbedChunks               InternalStatus = "EmbedChunks"
	UpsertChunks              InternalStatus = "UpsertChunks"
	Done                      InternalStatus = "Done"
)

var (
	ErrQueueEmpty      = errors.New("task queue is empty")
	ErrLockNotAcquired = errors.New("document lock is held by another worker")
)

type Task struct {
	Id          string                    `json:"id"`
	TraceId     string                    `json:"trace_id"`
	Message     changeModel.ChangeMessage `json:"message"`
	Attempt     int                       `json:"attempt"`
	MaxAttempts int                       `json:"max_attempts"`
	Status      TaskStatus                `json:"status"`
	CurrentStep InternalStatus            `json:"current_step"`
	Error       TaskError                 `json:"error,omitempty"`
	ChunkCount  int                       `json:"chunk_count,omitempty"`
	CreatedTime time.Time                 `json:"created_time"`
	EndTime     time.Time                 `json:"end_time,omitempty"`

	// Receipt is the queue specific handle used to acknowledge this delivery.
	Receipt string `json:"-"`
}

type TaskError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Retry   bool   `json:"retry"`
}

// DocumentKey names the document in logs.
func (t Task) DocumentKey() string {
	return t.Message.Collection + ":" + t.Message.DocumentId
}

// LockKey is the documentId alone: chunks are deleted and addressed by documentId
// across collections, so that is what two tasks must not touch at the same time.
func (t Task) LockKey() string {
	return t.Message.DocumentId
}

type TaskStore interface {
	GetTask(ctx context.Context, taskId string) (Task, bool)
	SaveTask(ctx context.Context, task Task) error
	DeleteTask(ctx context.Context, taskId string)
}

// TaskQueue delivers every task at least once. A dequeued task stays owned by the
// consumer until Ack; unacknowledged tasks come back through Recover.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context, wait time.Duration) (Task, error)
	Ack(ctx context.Context, task Task) error
	Recover(ctx context.Context) (int, error)
}

// QueueKeeper is implemented by queues shared between processes. Workers keep a
// heartbeat and reap the in-flight tasks of peers whose heartbeat expired.
type QueueKeeper interface {
	Heartbeat(ctx context.Context) error
	ReapOrphans(ctx context.Context) (int, error)
}

type DocumentLocker interface {
	// Lock blocks until the document lock is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, documentKey string) (func(context.Context) error, error)
}
