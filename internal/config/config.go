package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at process start and handed to constructors by value.
type Config struct {
	MongoURI             string
	MongoDBName          string
	Collections          []string
	WatchOperations      []string
	WatchPollInterval    time.Duration
	WatchMaxStreamErrors int

	RabbitHost         string
	RabbitPort         int
	RabbitUser         string
	RabbitPassword     string
	RabbitVHost        string
	RabbitQueue        string
	RabbitDeadLetter   bool
	PublishTimeout     time.Duration
	ConsumerMaxRetries int

	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	QdrantCollection string

	EmbeddingProvider       string
	EmbeddingModel          string
	EmbeddingAPIKey         string
	EmbeddingBaseURL        string
	EmbeddingDimension      int
	EmbeddingBatchSize      int
	EmbeddingMaxConcurrency int
	EmbeddingRatePerSecond  float64
	EmbeddingCacheSize      int

	ChunkSize    int
	ChunkOverlap int

	WorkerConcurrency int
	WorkerId          string
	TaskMaxAttempts   int
	TaskTimeout       time.Duration

	StoreCallTimeout     time.Duration
	EmbeddingCallTimeout time.Duration
	IndexCallTimeout     time.Duration

	RedisAddr       string
	RedisPassword   string
	DocumentLockTTL time.Duration

	OpsListenAddr string
	OpsAuthToken  string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		MongoURI:             getString("MONGO_URI", DefaultMongoURI),
		MongoDBName:          getString("MONGO_DB_NAME", DefaultMongoDBName),
		Collections:          getList("COLLECTIONS", DefaultCollections),
		WatchOperations:      getList("WATCH_OPERATIONS", DefaultWatchOperations),
		WatchPollInterval:    getDuration("WATCH_POLL_INTERVAL", WatchPollInterval, &errs),
		WatchMaxStreamErrors: getInt("WATCH_MAX_STREAM_ERRORS", WatchMaxStreamErrors, &errs),

		RabbitHost:         getString("RABBITMQ_HOST", DefaultRabbitHost),
		RabbitPort:         getInt("RABBITMQ_PORT", DefaultRabbitPort, &errs),
		RabbitUser:         getString("RABBITMQ_USER", DefaultRabbitUser),
		RabbitPassword:     getString("RABBITMQ_PASS", DefaultRabbitPassword),
		RabbitVHost:        getString("RABBITMQ_VHOST", "/"),
		RabbitQueue:        getString("RABBITMQ_QUEUE", DefaultRabbitQueue),
		RabbitDeadLetter:   getBool("RABBITMQ_DEAD_LETTER", RabbitDeadLetter, &errs),
		PublishTimeout:     getDuration("PUBLISH_TIMEOUT", PublishTimeout, &errs),
		ConsumerMaxRetries: getInt("CONSUMER_MAX_RETRIES", ConsumerMaxRetries, &errs),

		QdrantHost:       getString("QDRANT_HOST", QdrantHost),
		QdrantPort:       getInt("QDRANT_PORT", QdrantGrpcPort, &errs),
		QdrantAPIKey:     getString("QDRANT_API_KEY", ""),
		QdrantUseTLS:     getBool("QDRANT_USE_TLS", QdrantUseTLS, &errs),
		QdrantCollection: getString("QDRANT_COLLECTION", EmbeddingDBName),

		EmbeddingProvider:       strings.ToLower(getString("EMBEDDING_PROVIDER", EmbeddingProviderOpenAI)),
		EmbeddingAPIKey:         getString("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL:        getString("EMBEDDING_BASE_URL", ""),
		EmbeddingDimension:      getInt("EMBEDDING_DIMENSION", int(EmbeddingOutputDimensionality), &errs),
		EmbeddingBatchSize:      getInt("EMBEDDING_BATCH_SIZE", EmbeddingBatchSize, &errs),
		EmbeddingMaxConcurrency: getInt("EMBEDDING_MAX_CONCURRENCY", EmbeddingMaxConcurrency, &errs),
		EmbeddingRatePerSecond:  getFloat("EMBEDDING_RATE_PER_SECOND", EmbeddingRatePerSecond, &errs),
		EmbeddingCacheSize:      getInt("EMBEDDING_CACHE_SIZE", EmbeddingCacheSize, &errs),

		ChunkSize:    getInt("CHUNK_SIZE", ChunkSize, &errs),
		ChunkOverlap: getInt("CHUNK_OVERLAP", ChunkOverlap, &errs),

		WorkerConcurrency: getInt("WORKER_CONCURRENCY", WorkerConcurrency, &errs),
		WorkerId:          getString("WORKER_ID", defaultWorkerId()),
		TaskMaxAttempts:   getInt("TASK_MAX_ATTEMPTS", TaskMaxAttempts, &errs),
		TaskTimeout:       getDuration("TASK_TIMEOUT", TaskTimeout, &errs),

		StoreCallTimeout:     getDuration("STORE_CALL_TIMEOUT", StoreCallTimeout, &errs),
		EmbeddingCallTimeout: getDuration("EMBEDDING_CALL_TIMEOUT", EmbeddingCallTimeout, &errs),
		IndexCallTimeout:     getDuration("INDEX_CALL_TIMEOUT", IndexCallTimeout, &errs),

		RedisAddr:     getString("REDIS_ADDR", RedisAddr),
		RedisPassword: getString("REDIS_PASSWORD", ""),

		OpsListenAddr: getString("OPS_LISTEN_ADDR", ServerListenAddr),
		OpsAuthToken:  getString("OPS_AUTH_TOKEN", ""),

		LogLevel:  strings.ToLower(getString("LOG_LEVEL", "debug")),
		LogFormat: strings.ToLower(getString("LOG_FORMAT", "")),
	}

	model := GoogleEmbeddingModel
	if cfg.EmbeddingProvider == EmbeddingProviderOpenAI {
		model = OpenAIEmbeddingModel
	}
	cfg.EmbeddingModel = getString("EMBEDDING_MODEL", model)
	cfg.DocumentLockTTL = getDuration("DOCUMENT_LOCK_TTL", cfg.TaskTimeout+DocumentLockGrace, &errs)

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that would otherwise fail late inside a worker.
func (c Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.MongoDBName == "" {
		missing = append(missing, "MONGO_DB_NAME")
	}
	if len(c.Collections) == 0 {
		missing = append(missing, "COLLECTIONS")
	}
	if c.RabbitQueue == "" {
		missing = append(missing, "RABBITMQ_QUEUE")
	}
	if c.QdrantCollection == "" {
		missing = append(missing, "QDRANT_COLLECTION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.EmbeddingProvider {
	case EmbeddingProviderGoogle, EmbeddingProviderOpenAI:
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if c.ChunkSize <= 0 {
		return errors.New("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be in [0, CHUNK_SIZE)", c.ChunkOverlap)
	}
	if c.WorkerConcurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be positive")
	}
	if c.EmbeddingDimension <= 0 {
		return errors.New("EMBEDDING_DIMENSION must be positive")
	}
	if c.DocumentLockTTL <= c.TaskTimeout {
		return fmt.Errorf("DOCUMENT_LOCK_TTL (%s) must exceed TASK_TIMEOUT (%s)", c.DocumentLockTTL, c.TaskTimeout)
	}
	return nil
}

// AMQPURL builds the broker url from the split RABBITMQ_* settings.
func (c Config) AMQPURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitUser, c.RabbitPassword),
		Host:   net.JoinHostPort(c.RabbitHost, strconv.Itoa(c.RabbitPort)),
		Path:   "/" + strings.TrimPrefix(c.RabbitVHost, "/"),
	}
	return u.String()
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getString(key, fallback), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int, errs *[]error) int {
	v := getString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	v := getString(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := getString(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getString(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func defaultWorkerId() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	// stable across restarts so leftover in-flight tasks are recovered by the same worker
	return host
}
