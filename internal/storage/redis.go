package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "trellobot/pkg/logx"
)

const defaultRedisPrefix = "trellobot:"

// redisStore keeps checkpoints as plain keys and dedup entries as keys with a
// TTL, so Redis expires them on its own and PruneDedup has nothing to do.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("storage.url is required for redis driver")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	log.Debug("redis storage opened", logx.String("addr", opt.Addr), logx.Int("db", opt.DB), logx.String("prefix", prefix))
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) checkpointKey(key string) string { return s.prefix + "checkpoint:" + key }
func (s *redisStore) dedupKey(key string) string      { return s.prefix + "dedup:" + key }

func (s *redisStore) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.checkpointKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapRedisErr(err)
	}
	return v, true, nil
}

func (s *redisStore) PutCheckpoint(ctx context.Context, key, value string) error {
	return mapRedisErr(s.client.Set(ctx, s.checkpointKey(key), value, 0).Err())
}

func (s *redisStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return mapRedisErr(s.client.Set(ctx, s.dedupKey(key), until.UnixMilli(), ttl).Err())
}

func (s *redisStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	ms, err := s.client.Get(ctx, s.dedupKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, mapRedisErr(err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *redisStore) PruneDedup(context.Context, time.Time) (int, error) { return 0, nil }

func (s *redisStore) Close() error { return s.client.Close() }

func mapRedisErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}
