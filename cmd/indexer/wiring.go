package main

import (
	"context"
	"fmt"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/customHttpClient"
	"github.com/akolanti/docsync/internal/data/redisStore"
	"github.com/akolanti/docsync/internal/data/store"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/internal/handlers"
	"github.com/akolanti/docsync/internal/reindex"
	"github.com/akolanti/docsync/internal/reindex/chunking"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"github.com/akolanti/docsync/internal/reindex/embedding/googleEmbedding"
	"github.com/akolanti/docsync/internal/reindex/embedding/openaiEmbedding"
	"github.com/akolanti/docsync/internal/reindex/vectorDB/qdrantDB"
	"github.com/akolanti/docsync/internal/source/mongoSource"
	"github.com/akolanti/docsync/pkg/logger_i"
)

type dispatchStores struct {
	taskStore taskModel.TaskStore
	taskQueue taskModel.TaskQueue
	locker    taskModel.DocumentLocker
	checks    map[string]handlers.HealthCheck
	closers   []func() error
}

func (s *dispatchStores) close() {
	for _, c := range s.closers {
		_ = c()
	}
}

// openStores connects the three redis databases. When redis is down and the whole pipeline runs
// in this process, it can fall back to in-memory stores.
func openStores(ctx context.Context, cfg config.Config, singleProcess bool, logger *logger_i.Logger) (*dispatchStores, error) {
	taskDB, errTask := redisStore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, config.RedisTaskStore)
	queueDB, errQueue := redisStore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, config.RedisTaskQueue)
	lockDB, errLock := redisStore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, config.RedisLockStore)

	if errTask == nil && errQueue == nil && errLock == nil {
		return &dispatchStores{
			taskStore: store.NewRedisTaskStore(taskDB),
			taskQueue: store.NewRedisTaskQueue(queueDB, cfg.WorkerId),
			locker:    store.NewRedisDocumentLock(lockDB, cfg.DocumentLockTTL, config.DocumentLockBackoff),
			checks:    map[string]handlers.HealthCheck{"redis": queueDB.Ping},
			closers:   []func() error{taskDB.Close, queueDB.Close, lockDB.Close},
		}, nil
	}

	for _, db := range []*redisStore.Store{taskDB, queueDB, lockDB} {
		if db != nil {
			_ = db.Close()
		}
	}
	if !config.FALLBACK_REDIS_TO_INTERNALSTORE || !singleProcess {
		return nil, fmt.Errorf("redis stores are offline: %v %v %v", errTask, errQueue, errLock)
	}

	logger.Warn("Redis stores are offline, falling back to in-memory stores")
	return &dispatchStores{
		taskStore: store.NewInMemoryTaskStore(),
		taskQueue: store.NewInMemoryTaskQueue(config.BufferLimit),
		locker:    store.NewInMemoryDocumentLock(),
		checks:    map[string]handlers.HealthCheck{},
	}, nil
}

// buildReindexService connects the vector index, the embedder and the source store.
func buildReindexService(ctx context.Context, cfg config.Config, locker taskModel.DocumentLocker, checks map[string]handlers.HealthCheck) (reindex.Service, func(), error) {
	index, err := qdrantDB.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	setupCtx, cancel := context.WithTimeout(ctx, config.QdrantConnectionTimeout)
	defer cancel()
	if err := index.EnsureCollection(setupCtx); err != nil {
		_ = index.Close()
		return nil, nil, fmt.Errorf("qdrant collection setup: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		_ = index.Close()
		return nil, nil, err
	}

	source, err := mongoSource.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		_ = index.Close()
		return nil, nil, fmt.Errorf("source store unavailable: %w", err)
	}

	splitter, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		_ = index.Close()
		_ = source.Close(context.Background())
		return nil, nil, err
	}

	checks["qdrant"] = index.HealthCheck

	svc := reindex.NewService(reindex.ServiceConfig{
		Index:            index,
		Embedder:         embedding.NewManager(embedder, cfg.EmbeddingBatchSize, cfg.EmbeddingMaxConcurrency, cfg.EmbeddingRatePerSecond, cfg.EmbeddingCallTimeout),
		Splitter:         splitter,
		Source:           source,
		Locker:           locker,
		StoreCallTimeout: cfg.StoreCallTimeout,
		IndexCallTimeout: cfg.IndexCallTimeout,
		UpsertBatchSize:  cfg.EmbeddingBatchSize,
		ContentNotFound:  config.ContentNotFoundSentinel,
	})

	closeAll := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
		defer cancel()
		_ = source.Close(shutdownCtx)
		_ = index.Close()
	}
	return svc, closeAll, nil
}

func newEmbedder(ctx context.Context, cfg config.Config) (embedding.Embedder, error) {
	httpClient := customHttpClient.NewPooledClient(cfg.EmbeddingCallTimeout)

	var provider embedding.Embedder
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderGoogle:
		google, err := googleEmbedding.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.EmbeddingAPIKey, cfg.EmbeddingDimension, httpClient)
		if err != nil {
			return nil, err
		}
		provider = google
	case config.EmbeddingProviderOpenAI:
		provider = openaiEmbedding.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingDimension, httpClient)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}

	if cfg.EmbeddingCacheSize <= 0 {
		return provider, nil
	}
	cached, err := embedding.NewCachedEmbedder(provider, cfg.EmbeddingModel, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
