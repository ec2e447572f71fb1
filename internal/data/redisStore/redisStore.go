package redisStore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

// Store wraps one logical redis database. Callers pick the database through Type.
type Store struct {
	client *redis.Client
	Type   int
	logger *logger_i.Logger
}

// Connect opens the database and pings it; an offline redis is reported so the caller can fall back.
func Connect(ctx context.Context, addr string, password string, dbType int) (*Store, error) {
	if addr == "" {
		addr = config.RedisAddr
	}
	newClient := redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              password,
		DB:                    dbType,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	store := NewStore(newClient, dbType)

	pingCtx, cancel := context.WithTimeout(ctx, config.RedisPingTimeout)
	defer cancel()
	if err := newClient.Ping(pingCtx).Err(); err != nil {
		store.logger.Error("Redis is offline: ", "addr", addr, "error", err)
		_ = newClient.Close()
		return nil, fmt.Errorf("redis %s db %d: %w", addr, dbType, err)
	}

	store.logger.Info("Redis store init successfully", "addr", addr)
	return store, nil
}

func NewStore(client *redis.Client, dbType int) *Store {
	return &Store{
		client: client,
		Type:   dbType,
		logger: logger_i.NewLogger("Redis Store: " + strconv.Itoa(dbType)),
	}
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Error closing redis client", "error", err)
		return err
	}
	s.logger.Info("Redis Store Closed successfully")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
