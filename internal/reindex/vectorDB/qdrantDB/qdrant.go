package qdrantDB

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/reindex/vectorDB"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/qdrant/go-client/qdrant"
)

// scrollPageLimit bounds ListChunkIds; one article never gets near it.
const scrollPageLimit = 4096

// pointsAPI is the part of *qdrant.Client the adapter calls.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

type ClientHolder struct {
	QObj       pointsAPI
	collection string
	dimension  uint64
	logger     *logger_i.Logger
}

func NewClient(cfg config.Config) (*ClientHolder, error) {
	logger := logger_i.NewLogger("Qdrant")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:          cfg.QdrantHost,
		Port:          cfg.QdrantPort,
		APIKey:        cfg.QdrantAPIKey,
		UseTLS:        cfg.QdrantUseTLS,
		PoolSize:      uint(config.QdrantPoolSize),
		KeepAliveTime: int(config.QdrantKeepAliveTimeout.Seconds()),
	})
	if err != nil {
		logger.Error("could not instantiate: ", "error:", err)
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	logger.Info("Qdrant client created", "host", cfg.QdrantHost, "port", cfg.QdrantPort, "collection", cfg.QdrantCollection)

	return &ClientHolder{
		QObj:       client,
		collection: cfg.QdrantCollection,
		dimension:  uint64(cfg.EmbeddingDimension),
		logger:     logger,
	}, nil
}

func (db *ClientHolder) Close() error {
	db.logger.Info("Shutting down Qdrant")
	if err := db.QObj.Close(); err != nil {
		db.logger.Error("could not close Qdrant: ", "error:", err)
		return err
	}
	db.logger.Info("Closed Qdrant")
	return nil
}

// HealthCheck pings the qdrant server.
func (db *ClientHolder) HealthCheck(ctx context.Context) error {
	_, err := db.QObj.HealthCheck(ctx)
	return err
}

// EnsureCollection creates the collection and the payload indexes the pipeline filters on.
func (db *ClientHolder) EnsureCollection(ctx context.Context) error {
	if db.collection == "" {
		return errors.New("empty collection name")
	}

	exists, err := db.QObj.CollectionExists(ctx, db.collection)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", db.collection, err)
	}

	if !exists {
		err = db.QObj.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: db.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     db.dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %q: %w", db.collection, err)
		}
		db.logger.Info("collection created", "collection", db.collection, "size", db.dimension)
	} else {
		db.checkVectorSize(ctx)
	}

	for _, field := range []string{vectorDB.DocumentIdField, vectorDB.URLField, vectorDB.ChunkIdField} {
		_, err := db.QObj.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: db.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			db.logger.Warn("payload index not created", "field", field, "error", err)
		}
	}
	return nil
}

func (db *ClientHolder) checkVectorSize(ctx context.Context) {
	info, err := db.QObj.GetCollectionInfo(ctx, db.collection)
	if err != nil {
		db.logger.Warn("could not read collection info", "collection", db.collection, "error", err)
		return
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != db.dimension {
		db.logger.Warn("collection vector size differs from embedding dimension",
			"collection", db.collection, "collectionSize", size, "embeddingDimension", db.dimension)
	}
}

func documentFilter(documentId string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(vectorDB.DocumentIdField, documentId),
		},
	}
}

func (db *ClientHolder) DeleteByDocument(ctx context.Context, documentId string) error {
	_, err := db.QObj.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: db.collection,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentId)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete for document %s failed: %w", documentId, err)
	}
	db.logger.WithTrace(ctx).Debug("chunks deleted", "documentId", documentId)
	return nil
}

func (db *ClientHolder) UpsertChunks(ctx context.Context, chunks []commonModels.DocChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("mismatch: got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		point, err := buildPoint(chunk, vectors[i])
		if err != nil {
			return err
		}
		qdrantPoints[i] = point
	}

	_, err := db.QObj.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: db.collection,
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (db *ClientHolder) CountByDocument(ctx context.Context, documentId string) (uint64, error) {
	return db.QObj.Count(ctx, &qdrant.CountPoints{
		CollectionName: db.collection,
		Filter:         documentFilter(documentId),
		Exact:          qdrant.PtrOf(true),
	})
}

func (db *ClientHolder) ListChunkIds(ctx context.Context, documentId string) ([]string, error) {
	points, err := db.QObj.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: db.collection,
		Filter:         documentFilter(documentId),
		Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll failed: %w", err)
	}
	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.GetId().GetUuid())
	}
	return ids, nil
}
