package qdrantDB

import (
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/reindex/vectorDB"
	"github.com/qdrant/go-client/qdrant"
)

func buildPoint(chunk commonModels.DocChunk, vector []float32) (*qdrant.PointStruct, error) {
	payload, err := qdrant.TryValueMap(buildPayload(chunk))
	if err != nil {
		return nil, fmt.Errorf("payload for chunk %s: %w", chunk.ChunkKey, err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(chunk.ChunkId),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}, nil
}

// buildPayload lays the chunk out as {page_content, metadata}. Extra source fields
// are carried in metadata but never shadow the fields the pipeline owns.
func buildPayload(chunk commonModels.DocChunk) map[string]any {
	doc := chunk.Doc
	tags := make([]any, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		tags = append(tags, t)
	}

	metadata := map[string]any{}
	for k, v := range doc.Extra {
		metadata[k] = payloadValue(v)
	}
	owned := map[string]any{
		"document_id":    doc.Id,
		"collection":     doc.Collection,
		"title":          doc.Title,
		"author":         doc.Author,
		"category":       doc.Category,
		"url":            doc.URL,
		"publish_date":   doc.PublishDate,
		"description":    doc.Description,
		"tags":           tags,
		"main_image":     doc.MainImage,
		"bullet_summary": doc.BulletSummary,
		"chunk_id":       chunk.ChunkKey,
		"chunk_index":    chunk.ChunkIndex,
		"chunk_total":    chunk.ChunkTotal,
		"processed_at":   chunk.ProcessedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range owned {
		metadata[k] = v
	}

	return map[string]any{
		vectorDB.PageContentKey: chunk.Chunk,
		vectorDB.MetadataKey:    metadata,
	}
}

// payloadValue narrows normalized store values to the types a qdrant Value can hold.
func payloadValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = payloadValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = payloadValue(item)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}
