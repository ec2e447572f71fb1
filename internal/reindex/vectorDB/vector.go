package vectorDB

import (
	"context"

	"github.com/akolanti/docsync/internal/domain/commonModels"
)

// Payload keys shared by the index adapter and the downstream RAG reader.
const (
	PageContentKey  = "page_content"
	MetadataKey     = "metadata"
	DocumentIdField = MetadataKey + ".document_id"
	URLField        = MetadataKey + ".url"
	ChunkIdField    = MetadataKey + ".chunk_id"
)

// ChunkIndex keeps the chunk vectors of every document, addressable by document id.
type ChunkIndex interface {
	EnsureCollection(ctx context.Context) error
	DeleteByDocument(ctx context.Context, documentId string) error
	UpsertChunks(ctx context.Context, chunks []commonModels.DocChunk, vectors [][]float32) error
	CountByDocument(ctx context.Context, documentId string) (uint64, error)
	ListChunkIds(ctx context.Context, documentId string) ([]string, error)
}
