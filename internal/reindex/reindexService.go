package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/reindex/chunking"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"github.com/akolanti/docsync/internal/reindex/vectorDB"
	"github.com/akolanti/docsync/pkg/logger_i"
)

// SourceReader performs point reads against the source store. A missing document
// is reported as commonModels.ErrDocumentNotFound.
type SourceReader interface {
	FindDocument(ctx context.Context, collection string, documentId string) (map[string]any, error)
}

// Service brings the vector index for one document in line with the source store.
// The worker only sees this; the clients stay behind the private struct.
type Service interface {
	Reindex(ctx context.Context, task taskModel.Task) taskModel.Task
}

type ServiceConfig struct {
	Index            vectorDB.ChunkIndex
	Embedder         embedding.ChunkEmbedder
	Splitter         *chunking.Splitter
	Source           SourceReader
	Locker           taskModel.DocumentLocker
	StoreCallTimeout time.Duration
	IndexCallTimeout time.Duration
	UpsertBatchSize  int
	ContentNotFound  string
	Now              func() time.Time
}

type service struct {
	index           vectorDB.ChunkIndex
	embedder        embedding.ChunkEmbedder
	splitter        *chunking.Splitter
	source          SourceReader
	locker          taskModel.DocumentLocker
	storeTimeout    time.Duration
	indexTimeout    time.Duration
	upsertBatchSize int
	contentNotFound string
	now             func() time.Time
	logger          *logger_i.Logger
}

func NewService(cfg ServiceConfig) Service {
	s := &service{
		index:           cfg.Index,
		embedder:        cfg.Embedder,
		splitter:        cfg.Splitter,
		source:          cfg.Source,
		locker:          cfg.Locker,
		storeTimeout:    cfg.StoreCallTimeout,
		indexTimeout:    cfg.IndexCallTimeout,
		upsertBatchSize: cfg.UpsertBatchSize,
		contentNotFound: cfg.ContentNotFound,
		now:             cfg.Now,
		logger:          logger_i.NewLogger("Reindex Service"),
	}
	if s.upsertBatchSize <= 0 {
		s.upsertBatchSize = config.EmbeddingBatchSize
	}
	if s.contentNotFound == "" {
		s.contentNotFound = config.ContentNotFoundSentinel
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Reindex(ctx context.Context, task taskModel.Task) taskModel.Task {
	msg := task.Message
	log := s.logger.WithTrace(ctx).With("taskId", task.Id, "collection", msg.Collection,
		"documentId", msg.DocumentId, "operation", msg.Operation, "attempt", task.Attempt)

	task = logOutput(task, taskModel.Start, log)
	if err := msg.Validate(); err != nil {
		return s.taskError(task, err, "INVALID_MESSAGE", log)
	}

	task = logOutput(task, taskModel.AcquireDocumentLock, log)
	release, err := s.executeLockStep(ctx, task.LockKey())
	if err != nil {
		return s.taskError(task, err, "LOCK_FAILURE", log)
	}
	defer release()

	var doc commonModels.SourceDocument
	switch msg.Operation {
	case changeModel.OperationDelete:
		return s.deleteOnly(ctx, task, log)

	case changeModel.OperationInsert, changeModel.OperationUpdate, changeModel.OperationReplace:
		task = logOutput(task, taskModel.FetchOrUseEmbeddedPayload, log)
		doc, err = s.executeFetchStep(ctx, msg)
		if errors.Is(err, commonModels.ErrDocumentNotFound) {
			log.Warn("document is gone from the source store, removing its chunks")
			return s.deleteOnly(ctx, task, log)
		}
		if err != nil {
			return s.taskError(task, err, "SOURCE_READ_FAILURE", log)
		}

	default:
		return s.taskError(task, fmt.Errorf("%w: %q", changeModel.ErrUnknownOperation, msg.Operation), "INVALID_MESSAGE", log)
	}

	task = logOutput(task, taskModel.DeleteExistingChunks, log)
	if err := s.executeDeleteStep(ctx, msg.DocumentId); err != nil {
		return s.taskError(task, err, "VECTOR_DB_DELETE_FAILURE", log)
	}

	task = logOutput(task, taskModel.ChunkContent, log)
	chunks := s.executeChunkStep(doc)
	if len(chunks) == 0 {
		log.Warn("document has no text to index")
		return complete(task, taskModel.Done, 0, log)
	}

	task = logOutput(task, taskModel.EmbedChunks, log)
	vectors, err := s.executeEmbeddingStep(ctx, chunks)
	if err != nil {
		return s.taskError(task, err, "EMBEDDING_FAILURE", log)
	}

	task = logOutput(task, taskModel.UpsertChunks, log)
	if err := s.executeUpsertStep(ctx, chunks, vectors); err != nil {
		return s.taskError(task, err, "VECTOR_DB_UPSERT_FAILURE", log)
	}

	return complete(task, taskModel.Done, len(chunks), log)
}

func (s *service) deleteOnly(ctx context.Context, task taskModel.Task, log *logger_i.Logger) taskModel.Task {
	task = logOutput(task, taskModel.DeleteExistingChunks, log)
	if err := s.executeDeleteStep(ctx, task.Message.DocumentId); err != nil {
		return s.taskError(task, err, "VECTOR_DB_DELETE_FAILURE", log)
	}
	return complete(task, taskModel.Deleted, 0, log)
}
