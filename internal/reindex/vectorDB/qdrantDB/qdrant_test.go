package qdrantDB

import (
	"context"
	"errors"
	"testing"

	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/reindex/vectorDB"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/qdrant/go-client/qdrant"
)

// MockQdrant records the requests the adapter sends.
type MockQdrant struct {
	Deletes []*qdrant.DeletePoints
	Upserts []*qdrant.UpsertPoints
	Counts  []*qdrant.CountPoints
	Scrolls []*qdrant.ScrollPoints
	Indexes []string
	Created *qdrant.CreateCollection

	Exists       bool
	ScrollResult []*qdrant.RetrievedPoint
	OnDelete     func(req *qdrant.DeletePoints) error
}

func (m *MockQdrant) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	return m.Exists, nil
}

func (m *MockQdrant) CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error {
	m.Created = request
	return nil
}

func (m *MockQdrant) GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{}, nil
}

func (m *MockQdrant) CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	m.Indexes = append(m.Indexes, request.FieldName)
	return &qdrant.UpdateResult{}, nil
}

func (m *MockQdrant) Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	m.Deletes = append(m.Deletes, request)
	if m.OnDelete != nil {
		if err := m.OnDelete(request); err != nil {
			return nil, err
		}
	}
	return &qdrant.UpdateResult{}, nil
}

func (m *MockQdrant) Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	m.Upserts = append(m.Upserts, request)
	return &qdrant.UpdateResult{}, nil
}

func (m *MockQdrant) Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error) {
	m.Counts = append(m.Counts, request)
	return uint64(len(m.ScrollResult)), nil
}

func (m *MockQdrant) Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	m.Scrolls = append(m.Scrolls, request)
	return m.ScrollResult, nil
}

func (m *MockQdrant) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (m *MockQdrant) Close() error { return nil }

func newTestHolder(mock *MockQdrant) *ClientHolder {
	return &ClientHolder{
		QObj:       mock,
		collection: "news_embeddings",
		dimension:  3,
		logger:     logger_i.NewLogger("Qdrant"),
	}
}

func assertDocumentFilter(t *testing.T, filter *qdrant.Filter, documentId string) {
	t.Helper()
	must := filter.GetMust()
	if len(must) != 1 {
		t.Fatalf("expected one must condition, got %v", must)
	}
	field := must[0].GetField()
	if field.GetKey() != vectorDB.DocumentIdField || field.GetMatch().GetKeyword() != documentId {
		t.Errorf("filter = %s == %q, want %s == %q", field.GetKey(), field.GetMatch().GetKeyword(), vectorDB.DocumentIdField, documentId)
	}
}

func TestDeleteByDocument_FiltersOnDocumentId(t *testing.T) {
	mock := &MockQdrant{}
	db := newTestHolder(mock)

	if err := db.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}

	if len(mock.Deletes) != 1 {
		t.Fatalf("expected one delete request, got %d", len(mock.Deletes))
	}
	req := mock.Deletes[0]
	if req.CollectionName != "news_embeddings" || !req.GetWait() {
		t.Errorf("delete must target the collection and wait: %v", req)
	}
	filter := req.GetPoints().GetFilter()
	if filter == nil {
		t.Fatal("delete must select points by filter, not by id")
	}
	assertDocumentFilter(t, filter, "doc-1")
}

func TestDeleteByDocument_WrapsError(t *testing.T) {
	boom := errors.New("unavailable")
	db := newTestHolder(&MockQdrant{OnDelete: func(*qdrant.DeletePoints) error { return boom }})

	if err := db.DeleteByDocument(context.Background(), "doc-1"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestUpsertChunks(t *testing.T) {
	chunk := sampleChunk()

	t.Run("one point per chunk", func(t *testing.T) {
		mock := &MockQdrant{}
		err := newTestHolder(mock).UpsertChunks(context.Background(), []commonModels.DocChunk{chunk}, [][]float32{{1, 2, 3}})
		if err != nil {
			t.Fatalf("UpsertChunks: %v", err)
		}
		if len(mock.Upserts) != 1 {
			t.Fatalf("expected one upsert, got %d", len(mock.Upserts))
		}
		req := mock.Upserts[0]
		if !req.GetWait() || len(req.Points) != 1 {
			t.Fatalf("upsert = wait %v, %d points", req.GetWait(), len(req.Points))
		}
		if req.Points[0].GetId().GetUuid() != chunk.ChunkId {
			t.Errorf("point id = %v, want %s", req.Points[0].GetId(), chunk.ChunkId)
		}
	})

	t.Run("length mismatch sends nothing", func(t *testing.T) {
		mock := &MockQdrant{}
		err := newTestHolder(mock).UpsertChunks(context.Background(), []commonModels.DocChunk{chunk}, nil)
		if err == nil {
			t.Fatal("expected mismatch error")
		}
		if len(mock.Upserts) != 0 {
			t.Error("nothing should be sent on mismatch")
		}
	})

	t.Run("empty is a no-op", func(t *testing.T) {
		mock := &MockQdrant{}
		if err := newTestHolder(mock).UpsertChunks(context.Background(), nil, nil); err != nil {
			t.Fatalf("UpsertChunks: %v", err)
		}
		if len(mock.Upserts) != 0 {
			t.Error("empty upsert should not reach qdrant")
		}
	})
}

func TestCountAndListByDocument(t *testing.T) {
	mock := &MockQdrant{ScrollResult: []*qdrant.RetrievedPoint{
		{Id: qdrant.NewID("11111111-1111-5111-8111-111111111111")},
		{Id: qdrant.NewID("22222222-2222-5222-8222-222222222222")},
	}}
	db := newTestHolder(mock)
	ctx := context.Background()

	n, err := db.CountByDocument(ctx, "doc-2")
	if err != nil || n != 2 {
		t.Fatalf("CountByDocument = %d, %v", n, err)
	}
	if !mock.Counts[0].GetExact() {
		t.Error("count must be exact")
	}
	assertDocumentFilter(t, mock.Counts[0].GetFilter(), "doc-2")

	ids, err := db.ListChunkIds(ctx, "doc-2")
	if err != nil {
		t.Fatalf("ListChunkIds: %v", err)
	}
	if len(ids) != 2 || ids[0] != "11111111-1111-5111-8111-111111111111" {
		t.Errorf("ids = %v", ids)
	}
	assertDocumentFilter(t, mock.Scrolls[0].GetFilter(), "doc-2")
}

func TestEnsureCollection(t *testing.T) {
	mock := &MockQdrant{}
	if err := newTestHolder(mock).EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if mock.Created == nil || mock.Created.GetVectorsConfig().GetParams().GetSize() != 3 {
		t.Errorf("collection should be created with the embedding dimension, got %v", mock.Created)
	}
	want := []string{vectorDB.DocumentIdField, vectorDB.URLField, vectorDB.ChunkIdField}
	if len(mock.Indexes) != len(want) {
		t.Fatalf("payload indexes = %v, want %v", mock.Indexes, want)
	}
	for i := range want {
		if mock.Indexes[i] != want[i] {
			t.Errorf("index %d = %s, want %s", i, mock.Indexes[i], want[i])
		}
	}

	existing := &MockQdrant{Exists: true}
	if err := newTestHolder(existing).EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection on existing: %v", err)
	}
	if existing.Created != nil {
		t.Error("an existing collection must not be recreated")
	}
}
