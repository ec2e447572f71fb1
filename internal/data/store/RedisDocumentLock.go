package store

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/docsync/internal/adapter/utils"
	"github.com/akolanti/docsync/internal/data/redisStore"
	"github.com/akolanti/docsync/internal/domain/taskModel"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:doc:"

// only the holder's token may delete the key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDocumentLock serializes reindexing of one document across every worker process.
// The ttl bounds how long a crashed holder can block the document.
type RedisDocumentLock struct {
	store   *redisStore.Store
	ttl     time.Duration
	backoff time.Duration
	logger  *logger_i.Logger
}

func NewRedisDocumentLock(store *redisStore.Store, ttl time.Duration, backoff time.Duration) *RedisDocumentLock {
	return &RedisDocumentLock{
		store:   store,
		ttl:     ttl,
		backoff: backoff,
		logger:  logger_i.NewLogger("DocumentLock"),
	}
}

func (l *RedisDocumentLock) Lock(ctx context.Context, documentKey string) (func(context.Context) error, error) {
	key := lockKeyPrefix + documentKey
	token := utils.GetNewUUID()

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("lock %s: %w", documentKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", taskModel.ErrLockNotAcquired, documentKey, ctx.Err())
		case <-timer.C:
		}
	}

	l.logger.WithTrace(ctx).Debug("document lock acquired", "document", documentKey)
	return func(releaseCtx context.Context) error {
		res, err := l.store.RunScript(releaseCtx, releaseScript, []string{key}, token)
		if err != nil {
			return fmt.Errorf("unlock %s: %w", documentKey, err)
		}
		if n, _ := res.(int64); n == 0 {
			l.logger.Warn("document lock expired before release", "document", documentKey)
		}
		return nil
	}, nil
}
