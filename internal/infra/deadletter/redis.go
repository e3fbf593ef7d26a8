package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"batch-collector/internal/domain/entity"
)

// DefaultTTL bounds how long a dead letter's payload survives in Redis.
const DefaultTTL = 14 * 24 * time.Hour

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewRedisClient parses cfg.URL and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisQueue keeps each dead letter as a JSON value with a TTL and indexes the
// IDs in a sorted set scored by creation time.
type RedisQueue struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisQueue builds a queue on rdb. An empty prefix defaults to
// "batch_collector" and a non-positive ttl to DefaultTTL.
func NewRedisQueue(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisQueue {
	if prefix == "" {
		prefix = "batch_collector"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisQueue{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (q *RedisQueue) indexKey() string {
	return q.prefix + ":deadletters"
}

func (q *RedisQueue) itemKey(id string) string {
	return fmt.Sprintf("%s:deadletter:%s", q.prefix, id)
}

// Push stores dl under its own key with the queue TTL and indexes it by
// creation time. A zero CreatedAt is set to now.
func (q *RedisQueue) Push(ctx context.Context, dl entity.DeadLetter) error {
	if dl.ID == "" {
		return fmt.Errorf("push dead letter: %w", entity.ErrInvalidInput)
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := q.rdb.Set(ctx, q.itemKey(dl.ID), data, q.ttl).Err(); err != nil {
		return fmt.Errorf("set dead letter: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, q.indexKey(), redis.Z{
		Score:  float64(dl.CreatedAt.UnixMilli()),
		Member: dl.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index dead letter: %w", err)
	}
	return nil
}

// List returns up to limit dead letters, oldest first. limit <= 0 returns all.
// Index entries whose payload has expired are dropped from the index.
func (q *RedisQueue) List(ctx context.Context, limit int) ([]entity.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := q.rdb.ZRange(ctx, q.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	out := make([]entity.DeadLetter, 0, len(ids))
	for _, id := range ids {
		data, err := q.rdb.Get(ctx, q.itemKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			q.rdb.ZRem(ctx, q.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get dead letter %s: %w", id, err)
		}

		var dl entity.DeadLetter
		if err := json.Unmarshal(data, &dl); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter %s: %w", id, err)
		}
		out = append(out, dl)
	}
	return out, nil
}

// Remove deletes a dead letter and its index entry. It returns an error
// matching entity.ErrNotFound when neither exists.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	removed, err := q.rdb.ZRem(ctx, q.indexKey(), id).Result()
	if err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	deleted, err := q.rdb.Del(ctx, q.itemKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	if removed == 0 && deleted == 0 {
		return notFound(id)
	}
	return nil
}

// Count returns the number of indexed dead letters.
func (q *RedisQueue) Count(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
