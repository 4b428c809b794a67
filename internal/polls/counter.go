package polls

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic, restart-surviving counter against the storage layer.
// An in-process integer would lose its value on restart and race across
// shards, so counts live in Redis.
type Counter interface {
	Inc(ctx context.Context, name string) (int64, error)
}

const counterKeyPrefix = "stats:"

// RedisCounter implements Counter on Redis INCR.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Redis-backed counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Inc atomically increments and returns the counter.
func (c *RedisCounter) Inc(ctx context.Context, name string) (int64, error) {
	n, err := c.client.Incr(ctx, counterKeyPrefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", name, err)
	}
	return n, nil
}

// MemoryCounter is the in-process Counter used by tests.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter creates an empty counter set.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

// Inc atomically increments and returns the counter.
func (c *MemoryCounter) Inc(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
	return c.counts[name], nil
}

// Value returns the current count.
func (c *MemoryCounter) Value(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
