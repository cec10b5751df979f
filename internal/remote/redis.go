package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Borislavv/go-tier-cache/config"
)

// RedisBackend implements Backend on a redis server or a compatible
// engine.
type RedisBackend struct {
	client *redis.Client
}

// Connect dials the configured endpoint and verifies it with a ping
// bounded by the connect timeout. memoryLimitMB caps the server's
// keyspace memory; config.NoLimit leaves the server setting untouched.
func Connect(ctx context.Context, cfg *config.RemoteCfg, memoryLimitMB int) (*RedisBackend, error) {
	network, addr := cfg.Addr()
	client := redis.NewClient(&redis.Options{
		Network:      network,
		Addr:         addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		WriteTimeout: cfg.OperationTimeout,
	})

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	if memoryLimitMB != config.NoLimit && memoryLimitMB > 0 {
		maxmemory := strconv.Itoa(memoryLimitMB) + "mb"
		if err := client.ConfigSet(ctx, "maxmemory", maxmemory).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set memory limit on %s: %w", addr, err)
		}
	}

	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return raw, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := b.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %q: %w", key, err)
	}
	return n, nil
}

func (b *RedisBackend) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := b.client.DecrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis decrby %q: %w", key, err)
	}
	return n, nil
}

func (b *RedisBackend) AddIfAbsent(ctx context.Context, key string, raw []byte, ttl time.Duration) (bool, error) {
	added, err := b.client.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return added, nil
}

func (b *RedisBackend) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := b.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis expire %q: %w", key, err)
	}
	return ok, nil
}

func (b *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %q: %w", pattern, err)
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (b *RedisBackend) FlushAll(ctx context.Context) error {
	if err := b.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
