package secret

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed store. Secrets expire after the
// configured TTL so stale credentials age out of shared infrastructure.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, errors.New("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping failed")
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "rcp:secret:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(service, account string) string {
	return s.prefix + service + ":" + account
}

func (s *redisStore) Get(ctx context.Context, service, account string) (string, error) {
	secret, err := s.client.Get(ctx, s.key(service, account)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "redis get failed")
	}
	return secret, nil
}

func (s *redisStore) Set(ctx context.Context, service, account, secret string) error {
	if err := s.client.Set(ctx, s.key(service, account), secret, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, service, account string) error {
	if err := s.client.Del(ctx, s.key(service, account)).Err(); err != nil {
		return errors.Wrap(err, "redis delete failed")
	}
	return nil
}
