package reindex_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/data/store"
	"github.com/akolanti/docsync/internal/domain/changeModel"
	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/reindex"
	"github.com/akolanti/docsync/internal/reindex/chunking"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collection = "cong-nghe"
	docId      = "665f1c2e9b1e8a0012345678"
)

var (
	longContent  = strings.Repeat("abcd ", 240) // 1200 characters
	shortContent = strings.Repeat("word ", 80)  // 400 characters
)

type fixture struct {
	index    *InMemoryIndex
	embedder *MockEmbedder
	source   *MockSource
	locker   taskModel.DocumentLocker
	service  reindex.Service
}

func newFixture(t *testing.T, locker taskModel.DocumentLocker) *fixture {
	t.Helper()
	splitter, err := chunking.NewSplitter(500, 50)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	if locker == nil {
		locker = store.NewInMemoryDocumentLock()
	}
	f := &fixture{
		index:    NewInMemoryIndex(),
		embedder: &MockEmbedder{Dim: 4},
		source:   NewMockSource(),
		locker:   locker,
	}
	f.service = reindex.NewService(reindex.ServiceConfig{
		Index:            f.index,
		Embedder:         embedding.NewManager(f.embedder, 2, 2, 0, time.Second),
		Splitter:         splitter,
		Source:           f.source,
		Locker:           f.locker,
		StoreCallTimeout: time.Second,
		IndexCallTimeout: time.Second,
		UpsertBatchSize:  2,
		Now:              func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	return f
}

func newTask(op changeModel.Operation) taskModel.Task {
	return taskModel.Task{
		Id:          "task-" + string(op),
		TraceId:     "trace",
		MaxAttempts: 3,
		Attempt:     1,
		Status:      taskModel.TaskStatusRunning,
		Message: changeModel.ChangeMessage{
			Operation:  op,
			Collection: collection,
			DocumentId: docId,
		},
	}
}

func article(content string) map[string]any {
	return map[string]any{
		"title":        "Tiêu đề",
		"description":  "Mô tả ngắn",
		"content":      content,
		"url":          "https://example.vn/" + docId,
		"category":     "Công nghệ",
		"publish_date": "2025-05-30",
	}
}

func ctxWithTrace() context.Context {
	return context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
}

func expectedIds(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = utils.ChunkId(docId, i)
	}
	return ids
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, x := range a {
		seen[x]++
	}
	for _, x := range b {
		seen[x]--
		if seen[x] < 0 {
			return false
		}
	}
	return true
}

func TestReindex_InsertUpdateDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := ctxWithTrace()

	t.Run("insert with embedded document", func(t *testing.T) {
		task := newTask(changeModel.OperationInsert)
		task.Message.Document = article(longContent)

		got := f.service.Reindex(ctx, task)

		if got.Status != taskModel.TaskStatusComplete || got.CurrentStep != taskModel.Done {
			t.Fatalf("status=%s step=%s error=%+v", got.Status, got.CurrentStep, got.Error)
		}
		if got.ChunkCount != 3 {
			t.Errorf("ChunkCount = %d, want 3", got.ChunkCount)
		}
		ids, _ := f.index.ListChunkIds(ctx, docId)
		if !sameSet(ids, expectedIds(3)) {
			t.Errorf("chunk ids = %v, want %v", ids, expectedIds(3))
		}
		if f.source.Reads != 0 {
			t.Error("insert with a payload must not read the source store")
		}
	})

	t.Run("update shrinks to one chunk", func(t *testing.T) {
		f.source.Put(collection, docId, article(shortContent))
		task := newTask(changeModel.OperationUpdate)
		task.Message.UpdatedFields = map[string]any{"content": "partial"}

		got := f.service.Reindex(ctx, task)

		if got.Status != taskModel.TaskStatusComplete {
			t.Fatalf("update failed: %+v", got.Error)
		}
		ids, _ := f.index.ListChunkIds(ctx, docId)
		if !sameSet(ids, expectedIds(1)) {
			t.Errorf("after update ids = %v, want only chunk 0", ids)
		}
		if contents := f.index.Contents(docId); contents[0] != shortContent {
			t.Error("update must index the stored document, not the partial fields")
		}
		if f.source.Reads != 1 {
			t.Errorf("update should read the source store once, read %d", f.source.Reads)
		}
	})

	t.Run("delete removes every chunk", func(t *testing.T) {
		got := f.service.Reindex(ctx, newTask(changeModel.OperationDelete))

		if got.Status != taskModel.TaskStatusComplete || got.CurrentStep != taskModel.Deleted {
			t.Fatalf("status=%s step=%s", got.Status, got.CurrentStep)
		}
		if n, _ := f.index.CountByDocument(ctx, docId); n != 0 {
			t.Errorf("%d chunks left after delete", n)
		}
	})
}

func TestReindex_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := ctxWithTrace()
	f.source.Put(collection, docId, article(longContent))

	first := f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))
	idsFirst, _ := f.index.ListChunkIds(ctx, docId)
	contentFirst := f.index.Contents(docId)

	second := f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))
	idsSecond, _ := f.index.ListChunkIds(ctx, docId)
	contentSecond := f.index.Contents(docId)

	if first.Status != taskModel.TaskStatusComplete || second.Status != taskModel.TaskStatusComplete {
		t.Fatalf("reindex failed: %+v / %+v", first.Error, second.Error)
	}
	if strings.Join(idsFirst, ",") != strings.Join(idsSecond, ",") {
		t.Errorf("ids changed between runs: %v vs %v", idsFirst, idsSecond)
	}
	if strings.Join(contentFirst, "|") != strings.Join(contentSecond, "|") {
		t.Error("content changed between runs")
	}
}

func TestReindex_ReplaceUsesFullDocument(t *testing.T) {
	f := newFixture(t, nil)
	task := newTask(changeModel.OperationReplace)
	task.Message.FullDocument = article(shortContent)

	got := f.service.Reindex(ctxWithTrace(), task)

	if got.Status != taskModel.TaskStatusComplete || got.ChunkCount != 1 {
		t.Fatalf("replace failed: %+v", got)
	}
	if f.source.Reads != 0 {
		t.Error("replace with a full document must not read the source store")
	}
}

func TestReindex_InsertWithoutPayloadFetches(t *testing.T) {
	f := newFixture(t, nil)
	f.source.Put(collection, docId, article(shortContent))

	got := f.service.Reindex(ctxWithTrace(), newTask(changeModel.OperationInsert))

	if got.Status != taskModel.TaskStatusComplete || f.source.Reads != 1 {
		t.Fatalf("status=%s reads=%d", got.Status, f.source.Reads)
	}
}

func TestReindex_SentinelContentFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	task := newTask(changeModel.OperationInsert)
	task.Message.Document = article(config.ContentNotFoundSentinel)

	got := f.service.Reindex(ctxWithTrace(), task)

	if got.Status != taskModel.TaskStatusComplete {
		t.Fatalf("reindex failed: %+v", got.Error)
	}
	contents := f.index.Contents(docId)
	if len(contents) != 1 || contents[0] != "Tiêu đề\n\nMô tả ngắn" {
		t.Errorf("expected title and description as the only chunk, got %q", contents)
	}
}

func TestReindex_BlankRunsBetweenParagraphsAreNotIndexed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := ctxWithTrace()
	var first, second strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&first, "tin%03d ", i)
		fmt.Fprintf(&second, "sự%03d ", i)
	}
	task := newTask(changeModel.OperationInsert)
	task.Message.Document = article(first.String() + "\n\n\n\n" + second.String())

	got := f.service.Reindex(ctx, task)

	if got.Status != taskModel.TaskStatusComplete {
		t.Fatalf("reindex failed: %+v", got.Error)
	}
	contents := f.index.Contents(docId)
	if len(contents) != got.ChunkCount {
		t.Fatalf("index holds %d chunks, task reports %d", len(contents), got.ChunkCount)
	}
	for i, c := range contents {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is whitespace only: %q", i, c)
		}
	}
	ids, _ := f.index.ListChunkIds(ctx, docId)
	if !sameSet(ids, expectedIds(got.ChunkCount)) {
		t.Errorf("chunk ids should stay dense after dropping blanks: %v", ids)
	}
}

func TestReindex_EmptyDocumentLeavesNoChunks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := ctxWithTrace()
	insert := newTask(changeModel.OperationInsert)
	insert.Message.Document = article(longContent)
	f.service.Reindex(ctx, insert)

	f.source.Put(collection, docId, map[string]any{"content": ""})
	got := f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))

	if got.Status != taskModel.TaskStatusComplete || got.ChunkCount != 0 {
		t.Fatalf("status=%s chunks=%d", got.Status, got.ChunkCount)
	}
	if n, _ := f.index.CountByDocument(ctx, docId); n != 0 {
		t.Errorf("old chunks must be removed, %d left", n)
	}
}

func TestReindex_MissingDocumentIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	task := newTask(changeModel.OperationUpdate)
	task.Message.DocumentId = ""

	got := f.service.Reindex(ctxWithTrace(), task)

	if got.Status != taskModel.TaskStatusError || got.Error.Code != "INVALID_MESSAGE" {
		t.Fatalf("status=%s error=%+v", got.Status, got.Error)
	}
	if got.Error.Retry {
		t.Error("a message without documentId must not be retried")
	}
	if f.index.Deletes != 0 || f.source.Reads != 0 {
		t.Error("nothing should touch the index or the store")
	}
}

func TestReindex_VanishedDocumentIsDeleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := ctxWithTrace()
	insert := newTask(changeModel.OperationInsert)
	insert.Message.Document = article(longContent)
	f.service.Reindex(ctx, insert)

	got := f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))

	if got.Status != taskModel.TaskStatusComplete || got.CurrentStep != taskModel.Deleted {
		t.Fatalf("status=%s step=%s", got.Status, got.CurrentStep)
	}
	if n, _ := f.index.CountByDocument(ctx, docId); n != 0 {
		t.Errorf("%d chunks left for a document that no longer exists", n)
	}
}

func TestReindex_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantStep  taskModel.InternalStatus
		wantCode  string
		wantRetry bool
	}{
		{
			name: "embedding provider rate limited",
			setup: func(f *fixture) {
				f.embedder.OnBatch = func(ctx context.Context, texts []string) ([][]float32, error) {
					return nil, fmt.Errorf("%w: 429", commonModels.ErrTransient)
				}
			},
			wantStep:  taskModel.EmbedChunks,
			wantCode:  "EMBEDDING_FAILURE",
			wantRetry: true,
		},
		{
			name: "embedding dimension mismatch",
			setup: func(f *fixture) {
				f.embedder.OnBatch = func(ctx context.Context, texts []string) ([][]float32, error) {
					return make([][]float32, len(texts)), nil
				}
			},
			wantStep:  taskModel.EmbedChunks,
			wantCode:  "EMBEDDING_FAILURE",
			wantRetry: false,
		},
		{
			name: "index unavailable on delete",
			setup: func(f *fixture) {
				f.index.OnDelete = func(ctx context.Context, documentId string) error {
					return status.Error(codes.Unavailable, "qdrant down")
				}
			},
			wantStep:  taskModel.DeleteExistingChunks,
			wantCode:  "VECTOR_DB_DELETE_FAILURE",
			wantRetry: true,
		},
		{
			name: "index rejects upsert",
			setup: func(f *fixture) {
				f.index.OnUpsert = func(ctx context.Context, chunks []commonModels.DocChunk) error {
					return status.Error(codes.InvalidArgument, "wrong vector size")
				}
			},
			wantStep:  taskModel.UpsertChunks,
			wantCode:  "VECTOR_DB_UPSERT_FAILURE",
			wantRetry: false,
		},
		{
			name: "source store hangs",
			setup: func(f *fixture) {
				f.source.OnFind = func(ctx context.Context, collection string, documentId string) (map[string]any, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}
			},
			wantStep:  taskModel.FetchOrUseEmbeddedPayload,
			wantCode:  "SOURCE_READ_FAILURE",
			wantRetry: true,
		},
		{
			name: "document lock contended",
			setup: func(f *fixture) {
				f.locker.(*MockLocker).OnLock = func(ctx context.Context, documentKey string) error {
					return taskModel.ErrLockNotAcquired
				}
			},
			wantStep:  taskModel.AcquireDocumentLock,
			wantCode:  "LOCK_FAILURE",
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &MockLocker{})
			f.source.Put(collection, docId, article(longContent))
			tt.setup(f)

			ctx, cancel := context.WithTimeout(ctxWithTrace(), 5*time.Second)
			defer cancel()
			if tt.wantStep == taskModel.FetchOrUseEmbeddedPayload {
				// the per call deadline must fire long before the task deadline
				f.service = rebuildWithStoreTimeout(f, 30*time.Millisecond)
			}

			got := f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))

			if got.Status != taskModel.TaskStatusError {
				t.Fatalf("expected error status, got %s", got.Status)
			}
			if got.CurrentStep != tt.wantStep {
				t.Errorf("CurrentStep = %s, want %s", got.CurrentStep, tt.wantStep)
			}
			if got.Error.Code != tt.wantCode {
				t.Errorf("Error.Code = %s, want %s", got.Error.Code, tt.wantCode)
			}
			if got.Error.Retry != tt.wantRetry {
				t.Errorf("Error.Retry = %v, want %v (%s)", got.Error.Retry, tt.wantRetry, got.Error.Message)
			}
		})
	}
}

func rebuildWithStoreTimeout(f *fixture, timeout time.Duration) reindex.Service {
	splitter, _ := chunking.NewSplitter(500, 50)
	return reindex.NewService(reindex.ServiceConfig{
		Index:            f.index,
		Embedder:         embedding.NewManager(f.embedder, 2, 2, 0, time.Second),
		Splitter:         splitter,
		Source:           f.source,
		Locker:           f.locker,
		StoreCallTimeout: timeout,
		IndexCallTimeout: time.Second,
	})
}

// Two updates of one document racing on different workers must leave exactly
// the chunk set of the version read last, never a mix of both.
func TestReindex_ConcurrentUpdatesSameDocument(t *testing.T) {
	f := newFixture(t, store.NewInMemoryDocumentLock())
	ctx := ctxWithTrace()
	f.source.Put(collection, docId, article(longContent))

	var calls atomic.Int32
	entered := make(chan struct{})
	gate := make(chan struct{})
	f.embedder.OnBatch = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-gate
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, 4)
		}
		return out, nil
	}

	results := make([]taskModel.Task, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))
	}()

	<-entered
	f.source.Put(collection, docId, article(shortContent))
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = f.service.Reindex(ctx, newTask(changeModel.OperationUpdate))
	}()

	time.Sleep(30 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, r := range results {
		if r.Status != taskModel.TaskStatusComplete {
			t.Fatalf("reindex %d failed: %+v", i, r.Error)
		}
	}
	ids, _ := f.index.ListChunkIds(ctx, docId)
	if !sameSet(ids, expectedIds(1)) {
		t.Fatalf("expected only the latest version's chunk, got %v", ids)
	}
	if contents := f.index.Contents(docId); contents[0] != shortContent {
		t.Errorf("final content is not the latest version")
	}
}

func TestReindex_LocksOnDocumentIdAcrossCollections(t *testing.T) {
	var keys []string
	var mu sync.Mutex
	locker := &MockLocker{OnLock: func(ctx context.Context, documentKey string) error {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, documentKey)
		return nil
	}}
	f := newFixture(t, locker)
	ctx := ctxWithTrace()

	for _, coll := range []string{"cong-nghe", "the-gioi"} {
		task := newTask(changeModel.OperationDelete)
		task.Message.Collection = coll
		if got := f.service.Reindex(ctx, task); got.Status != taskModel.TaskStatusComplete {
			t.Fatalf("delete in %s failed: %+v", coll, got.Error)
		}
	}

	if len(keys) != 2 || keys[0] != keys[1] || keys[0] != docId {
		t.Errorf("the same documentId must share one lock in every collection, got %v", keys)
	}
}

func TestPrepareChunks(t *testing.T) {
	doc := commonModels.SourceDocument{Id: docId, Title: "t"}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	chunks := reindex.PrepareChunks(doc, []string{"a", "b", "c"}, now)

	for i, c := range chunks {
		if c.ChunkId != utils.ChunkId(docId, i) || c.ChunkKey != fmt.Sprintf("%s_%d", docId, i) {
			t.Errorf("chunk %d has ids %s / %s", i, c.ChunkId, c.ChunkKey)
		}
		if c.ChunkIndex != i || c.ChunkTotal != 3 || !c.ProcessedAt.Equal(now) {
			t.Errorf("chunk %d position metadata wrong: %+v", i, c)
		}
	}
	again := reindex.PrepareChunks(doc, []string{"x", "y", "z"}, now.Add(time.Hour))
	if again[2].ChunkId != chunks[2].ChunkId {
		t.Error("chunk ids must depend only on document id and index")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"missing id", changeModel.ErrMissingDocumentId, false},
		{"wrapped unknown op", fmt.Errorf("x: %w", changeModel.ErrUnknownOperation), false},
		{"dimension", embedding.ErrDimensionMismatch, false},
		{"transient", fmt.Errorf("%w: 503", commonModels.ErrTransient), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"lock", taskModel.ErrLockNotAcquired, true},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"unknown", errors.New("something"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reindex.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
