package reindex

import (
	"context"
	"errors"
	"time"

	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/metrics"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"github.com/akolanti/docsync/pkg/logger_i"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func logOutput(task taskModel.Task, step taskModel.InternalStatus, log *logger_i.Logger) taskModel.Task {
	task.CurrentStep = step
	log.Debug("Reindex", "Current Step", task.CurrentStep)
	return task
}

func complete(task taskModel.Task, step taskModel.InternalStatus, chunkCount int, log *logger_i.Logger) taskModel.Task {
	task.CurrentStep = step
	task.Status = taskModel.TaskStatusComplete
	task.ChunkCount = chunkCount
	task.Error = taskModel.TaskError{}
	log.Info("reindex finished", "step", step, "chunks", chunkCount)
	return task
}

func (s *service) taskError(task taskModel.Task, err error, code string, log *logger_i.Logger) taskModel.Task {
	retry := IsRetryable(err)
	log.Error(code, "step", task.CurrentStep, "retry", retry, "error", err)

	task.Error = taskModel.TaskError{
		Code:    code,
		Message: err.Error(),
		Retry:   retry,
	}
	task.Status = taskModel.TaskStatusError
	return task
}

// IsRetryable separates failures a later attempt can fix from ones it cannot.
// Deadlines count as retryable; unknown errors are retried too since attempts are bounded.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, changeModel.ErrMissingDocumentId),
		errors.Is(err, changeModel.ErrMissingCollection),
		errors.Is(err, changeModel.ErrUnknownOperation),
		errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, embedding.ErrCountMismatch):
		return false
	case errors.Is(err, commonModels.ErrTransient),
		errors.Is(err, taskModel.ErrLockNotAcquired),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition,
			codes.PermissionDenied, codes.Unauthenticated, codes.Unimplemented, codes.OutOfRange:
			return false
		}
	}
	return true
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// PrepareChunks attaches deterministic ids and position metadata to the split texts.
func PrepareChunks(doc commonModels.SourceDocument, texts []string, processedAt time.Time) []commonModels.DocChunk {
	chunks := make([]commonModels.DocChunk, len(texts))
	for i, text := range texts {
		chunks[i] = commonModels.DocChunk{
			Doc:         doc,
			ChunkId:     utils.ChunkId(doc.Id, i),
			ChunkKey:    utils.ChunkKey(doc.Id, i),
			Chunk:       text,
			ChunkIndex:  i,
			ChunkTotal:  len(texts),
			ProcessedAt: processedAt,
		}
	}
	return chunks
}

func (s *service) executeLockStep(ctx context.Context, documentKey string) (func(), error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("document_lock", time.Since(start)) }()

	unlock, err := s.locker.Lock(ctx, documentKey)
	if err != nil {
		return nil, err
	}
	return func() {
		releaseCtx, cancel := callContext(context.WithoutCancel(ctx), s.storeTimeout)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			s.logger.WithTrace(ctx).Warn("document lock release failed", "document", documentKey, "error", err)
		}
	}, nil
}

func (s *service) executeFetchStep(ctx context.Context, msg changeModel.ChangeMessage) (commonModels.SourceDocument, error) {
	if payload, ok := msg.Payload(); ok {
		return commonModels.DocumentFromMap(msg.DocumentId, msg.Collection, payload), nil
	}

	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("source_read", time.Since(start)) }()

	callCtx, cancel := callContext(ctx, s.storeTimeout)
	defer cancel()

	raw, err := s.source.FindDocument(callCtx, msg.Collection, msg.DocumentId)
	if err != nil {
		return commonModels.SourceDocument{}, err
	}
	return commonModels.DocumentFromMap(msg.DocumentId, msg.Collection, raw), nil
}

func (s *service) executeDeleteStep(ctx context.Context, documentId string) error {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("vector_delete", time.Since(start)) }()

	callCtx, cancel := callContext(ctx, s.indexTimeout)
	defer cancel()
	return s.index.DeleteByDocument(callCtx, documentId)
}

func (s *service) executeChunkStep(doc commonModels.SourceDocument) []commonModels.DocChunk {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("chunking", time.Since(start)) }()

	texts := s.splitter.Split(doc.ChunkingInput(s.contentNotFound))
	return PrepareChunks(doc, texts, s.now().UTC())
}

func (s *service) executeEmbeddingStep(ctx context.Context, chunks []commonModels.DocChunk) ([][]float32, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("embedding", time.Since(start)) }()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk
	}
	return s.embedder.EmbedChunks(ctx, texts)
}

func (s *service) executeUpsertStep(ctx context.Context, chunks []commonModels.DocChunk, vectors [][]float32) error {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("vector_upsert", time.Since(start)) }()

	for from := 0; from < len(chunks); from += s.upsertBatchSize {
		to := min(from+s.upsertBatchSize, len(chunks))
		callCtx, cancel := callContext(ctx, s.indexTimeout)
		err := s.index.UpsertChunks(callCtx, chunks[from:to], vectors[from:to])
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}
