package reindex_test

import (
	"context"
	"sort"
	"sync"

	"github.com/akolanti/docsync/internal/domain/commonModels"
)

// InMemoryIndex implements vectorDB.ChunkIndex over a map keyed by point id.
type InMemoryIndex struct {
	mu      sync.Mutex
	points  map[string]commonModels.DocChunk
	vectors map[string][]float32
	Deletes int
	Upserts int

	OnDelete func(ctx context.Context, documentId string) error
	OnUpsert func(ctx context.Context, chunks []commonModels.DocChunk) error
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		points:  map[string]commonModels.DocChunk{},
		vectors: map[string][]float32{},
	}
}

func (m *InMemoryIndex) EnsureCollection(ctx context.Context) error { return nil }

func (m *InMemoryIndex) DeleteByDocument(ctx context.Context, documentId string) error {
	if m.OnDelete != nil {
		if err := m.OnDelete(ctx, documentId); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	for id, c := range m.points {
		if c.Doc.Id == documentId {
			delete(m.points, id)
			delete(m.vectors, id)
		}
	}
	return nil
}

func (m *InMemoryIndex) UpsertChunks(ctx context.Context, chunks []commonModels.DocChunk, vectors [][]float32) error {
	if m.OnUpsert != nil {
		if err := m.OnUpsert(ctx, chunks); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts++
	for i, c := range chunks {
		m.points[c.ChunkId] = c
		m.vectors[c.ChunkId] = vectors[i]
	}
	return nil
}

func (m *InMemoryIndex) CountByDocument(ctx context.Context, documentId string) (uint64, error) {
	ids, _ := m.ListChunkIds(ctx, documentId)
	return uint64(len(ids)), nil
}

func (m *InMemoryIndex) ListChunkIds(ctx context.Context, documentId string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, c := range m.points {
		if c.Doc.Id == documentId {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Contents returns the chunk texts of a document ordered by chunk index.
func (m *InMemoryIndex) Contents(documentId string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chunks []commonModels.DocChunk
	for _, c := range m.points {
		if c.Doc.Id == documentId {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Chunk
	}
	return out
}

// MockEmbedder implements embedding.Embedder with constant vectors.
type MockEmbedder struct {
	Dim     int
	OnBatch func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *MockEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := m.BatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (m *MockEmbedder) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if m.OnBatch != nil {
		return m.OnBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, m.Dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (m *MockEmbedder) Dimension() int { return m.Dim }

// MockSource implements reindex.SourceReader over a map of documents.
type MockSource struct {
	mu     sync.Mutex
	docs   map[string]map[string]any
	Reads  int
	OnFind func(ctx context.Context, collection string, documentId string) (map[string]any, error)
}

func NewMockSource() *MockSource {
	return &MockSource{docs: map[string]map[string]any{}}
}

func (m *MockSource) Put(collection string, documentId string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection+"/"+documentId] = doc
}

func (m *MockSource) Remove(collection string, documentId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, collection+"/"+documentId)
}

func (m *MockSource) FindDocument(ctx context.Context, collection string, documentId string) (map[string]any, error) {
	m.mu.Lock()
	m.Reads++
	m.mu.Unlock()
	if m.OnFind != nil {
		return m.OnFind(ctx, collection, documentId)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection+"/"+documentId]
	if !ok {
		return nil, commonModels.ErrDocumentNotFound
	}
	return doc, nil
}

// MockLocker implements taskModel.DocumentLocker without any exclusion.
type MockLocker struct {
	OnLock func(ctx context.Context, documentKey string) error
}

func (m *MockLocker) Lock(ctx context.Context, documentKey string) (func(context.Context) error, error) {
	if m.OnLock != nil {
		if err := m.OnLock(ctx, documentKey); err != nil {
			return nil, err
		}
	}
	return func(context.Context) error { return nil }, nil
}
