package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD                         = false
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, it falls back to an internal in-memory store
	TRACE_ID_KEY                    = "traceId"
	RATE_LIMIT_PER_SECOND           = 2
	BURST_RATE_LIMIT_PER_SECOND     = 5

	//source store
	DefaultMongoURI         = "mongodb://localhost:27017"
	DefaultMongoDBName      = "News"
	DefaultCollections      = "chinh-tri,cong-nghe,doi-song,giao-duc,phap-luat,the-gioi"
	DefaultWatchOperations  = "insert,update,delete"
	MongoConnectTimeout     = 10 * time.Second
	WatchPollInterval       = 100 * time.Millisecond
	WatchMaxStreamErrors    = 5
	ContentNotFoundSentinel = "Không tìm thấy nội dung chi tiết"

	//rabbitmq
	DefaultRabbitHost     = "localhost"
	DefaultRabbitPort     = 5672
	DefaultRabbitUser     = "guest"
	DefaultRabbitPassword = "guest"
	DefaultRabbitQueue    = "change-events"
	RabbitHeartbeat       = 600 * time.Second
	PublishTimeout        = 10 * time.Second
	ConsumerMaxRetries    = 5
	ConsumerPrefetch      = 1
	RetryCountHeader      = "x-retry-count"
	DeadLetterSuffix      = ".dlq"
	RabbitDeadLetter      = true // false keeps a queue declared without dead letter arguments usable

	//vectorDB
	QdrantConnectionTimeout = 30 * time.Second
	QdrantHost              = "localhost"
	QdrantGrpcPort          = 6334
	QdrantUseTLS            = false //set for https
	QdrantPoolSize          = 1     //2-5 is preferred for prod according to documentation
	QdrantKeepAliveTimeout  = 30 * time.Second
	EmbeddingDBName         = "news_embeddings"

	//embeddings
	EmbeddingProviderGoogle              = "google"
	EmbeddingProviderOpenAI              = "openai"
	GoogleEmbeddingModel                 = "gemini-embedding-001"
	OpenAIEmbeddingModel                 = "BAAI/bge-m3"
	EmbeddingOutputDimensionality  int32 = 1024 // bge-m3
	EmbeddingBatchSize                   = 64
	EmbeddingMaxConcurrency              = 4
	EmbeddingRatePerSecond               = 5.0
	EmbeddingTaskType                    = "RETRIEVAL_DOCUMENT"
	EmbeddingRetryAfterRateLimit         = 5 * time.Second
	EmbeddingCacheSize                   = 2048 // 0 disables the cache

	//chunking
	ChunkSize    = 500
	ChunkOverlap = 50

	//workers
	WorkerConcurrency = 4
	TaskMaxAttempts   = 5
	TaskTimeout       = 120 * time.Second
	TaskRetryBackoff  = 2 * time.Second
	TaskMaxBackoff    = 30 * time.Second
	QueuePollTimeout  = 2 * time.Second
	BufferLimit       = 100

	//a worker whose heartbeat is gone for WorkerHeartbeatTTL loses its in-flight tasks to the others
	WorkerHeartbeatInterval = 10 * time.Second
	WorkerHeartbeatTTL      = 3 * WorkerHeartbeatInterval

	//per call deadlines
	StoreCallTimeout     = 10 * time.Second
	EmbeddingCallTimeout = 60 * time.Second
	IndexCallTimeout     = 20 * time.Second

	//ops server
	ServerListenAddr       = ":3000"
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 10 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	//redis
	redisHost = "127.0.0.1"
	redisPort = "6379"
	RedisAddr = redisHost + ":" + redisPort

	//redis has 16 DB we can use
	RedisTaskStore = 0
	RedisTaskQueue = 1
	RedisLockStore = 2

	RedisTaskStoreTTL   = 24 * time.Hour
	RedisPingTimeout    = 3 * time.Second
	DocumentLockGrace   = 30 * time.Second // lock ttl = task timeout + grace
	DocumentLockBackoff = 50 * time.Millisecond
)
