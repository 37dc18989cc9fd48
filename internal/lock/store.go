package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is an atomic key-value store with conditional set, conditional
// delete and expiry
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DelIfValue deletes each key still holding value and returns how many it removed
	DelIfValue(ctx context.Context, value string, keys ...string) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
}

// delIfValueScript compares and deletes in one round trip so a lock that
// expired and was taken by another booking is left alone.
const delIfValueScript = `
local deleted = 0
for _, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		deleted = deleted + redis.call("DEL", key)
	end
end
return deleted`

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on top of Redis (or Valkey)
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient opens a client and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) DelIfValue(ctx context.Context, value string, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Eval(ctx, delIfValueScript, keys, value).Int64()
	if err != nil {
		return 0, fmt.Errorf("del %d keys owned by %s: %w", len(keys), value, err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
