package commonModels

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceDocument is a news article as stored in the source store.
type SourceDocument struct {
	Id            string         `json:"document_id"`
	Collection    string         `json:"collection"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Content       string         `json:"content"`
	Author        string         `json:"author"`
	Category      string         `json:"category"`
	URL           string         `json:"url"`
	PublishDate   string         `json:"publish_date"`
	Tags          []string       `json:"tags"`
	MainImage     string         `json:"main_image"`
	BulletSummary string         `json:"bullet_summary"`
	Extra         map[string]any `json:"-"`
}

type DocChunk struct {
	Doc         SourceDocument
	ChunkId     string    `json:"chunk_id"`
	ChunkKey    string    `json:"chunk_key"`
	Chunk       string    `json:"content"`
	ChunkIndex  int       `json:"chunk_index"`
	ChunkTotal  int       `json:"chunk_total"`
	ProcessedAt time.Time `json:"processed_at"`
}

const DefaultAuthor = "Không có thông tin tác giả"

var (
	ErrDocumentNotFound = errors.New("document not found in source store")
	// ErrTransient marks failures of an external dependency that are worth retrying.
	ErrTransient = errors.New("transient dependency failure")
)

var knownFields = map[string]bool{
	"_id": true, "title": true, "description": true, "content": true, "author": true,
	"category": true, "url": true, "publish_date": true, "tags": true, "main_image": true,
	"bullet_summary": true,
}

// DocumentFromMap maps a loosely typed store record onto SourceDocument. Unknown fields land in Extra.
func DocumentFromMap(id string, collection string, raw map[string]any) SourceDocument {
	doc := SourceDocument{
		Id:            id,
		Collection:    collection,
		Title:         stringField(raw, "title"),
		Description:   stringField(raw, "description"),
		Content:       stringField(raw, "content"),
		Author:        stringField(raw, "author"),
		Category:      stringField(raw, "category"),
		URL:           stringField(raw, "url"),
		PublishDate:   stringField(raw, "publish_date"),
		Tags:          stringSlice(raw["tags"]),
		MainImage:     stringField(raw, "main_image"),
		BulletSummary: stringField(raw, "bullet_summary"),
		Extra:         map[string]any{},
	}
	if doc.Author == "" {
		doc.Author = DefaultAuthor
	}
	for k, v := range raw {
		if !knownFields[k] {
			doc.Extra[k] = v
		}
	}
	return doc
}

// ChunkingInput is the text that gets split. Articles whose body could not be crawled
// carry a sentinel instead of content and are indexed by title and description.
func (d SourceDocument) ChunkingInput(contentNotFound string) string {
	content := d.Content
	if strings.TrimSpace(content) == "" || strings.TrimSpace(content) == contentNotFound {
		if d.Title == "" && d.Description == "" {
			return ""
		}
		return d.Title + "\n\n" + d.Description
	}
	return content
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
