package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis persists entries in a Redis instance, for operators who want records
// outside the node's database. Key paths map to colon-separated Redis keys.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis instance at redisURL and verifies the
// connection with a ping.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func redisKey(key []string) string {
	return strings.Join(key, ":")
}

func (r *Redis) Get(ctx context.Context, key []string) (string, bool, error) {
	v, err := r.client.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Put(ctx context.Context, key []string, value string) error {
	return r.client.Set(ctx, redisKey(key), value, 0).Err()
}

func (r *Redis) PutNew(ctx context.Context, key []string, value string) error {
	ok, err := r.client.SetNX(ctx, redisKey(key), value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key []string) error {
	n, err := r.client.Del(ctx, redisKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) List(ctx context.Context, prefix []string) ([]Entry, error) {
	lead := redisKey(prefix) + ":"
	var out []Entry
	iter := r.client.Scan(ctx, 0, lead+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		v, err := r.client.Get(ctx, k).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: strings.Split(k, ":"), Value: v})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
