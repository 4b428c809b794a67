package eligibility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	unlockKeyPrefix = "premium:unlock:"
	eventKeyPrefix  = "premium:evt:"
	// EventBucket is the deduplication window for webhook deliveries: at most
	// one grant per (userID, bucket).
	EventBucket = time.Hour
)

// RedisPremiumStore persists premium unlocks in Redis so they survive
// restarts and are shared across shards.
type RedisPremiumStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisPremiumStore creates a premium entitlement store. ttl bounds how
// long an unlock lasts; zero means no expiry.
func NewRedisPremiumStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPremiumStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPremiumStore{client: client, logger: logger, ttl: ttl}
}

// IsUnlocked reports whether the user currently holds the entitlement.
func (s *RedisPremiumStore) IsUnlocked(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, unlockKeyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("premium lookup: %w", err)
	}
	return n > 0, nil
}

// Grant records an unlock signal idempotently per (userID, timestamp bucket).
// Returns false when this delivery was a duplicate of one already applied.
func (s *RedisPremiumStore) Grant(ctx context.Context, userID string, at time.Time) (bool, error) {
	bucket := at.UTC().Truncate(EventBucket).Format("2006010215")
	fresh, err := s.client.SetNX(ctx, eventKeyPrefix+userID+":"+bucket, 1, 2*EventBucket).Result()
	if err != nil {
		return false, fmt.Errorf("premium dedupe: %w", err)
	}
	if !fresh {
		return false, nil
	}
	if err := s.client.Set(ctx, unlockKeyPrefix+userID, 1, s.ttl).Err(); err != nil {
		return false, fmt.Errorf("premium grant: %w", err)
	}
	s.logger.Info("premium unlock granted", zap.String("user_id", userID), zap.String("bucket", bucket))
	return true, nil
}

// MemoryPremiumStore is the in-process equivalent used by tests.
type MemoryPremiumStore struct {
	mu       sync.Mutex
	unlocked map[string]bool
	seen     map[string]bool
}

// NewMemoryPremiumStore creates an empty in-memory entitlement store.
func NewMemoryPremiumStore() *MemoryPremiumStore {
	return &MemoryPremiumStore{
		unlocked: make(map[string]bool),
		seen:     make(map[string]bool),
	}
}

// IsUnlocked reports whether the user holds the entitlement.
func (s *MemoryPremiumStore) IsUnlocked(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked[userID], nil
}

// Grant mirrors RedisPremiumStore.Grant semantics.
func (s *MemoryPremiumStore) Grant(_ context.Context, userID string, at time.Time) (bool, error) {
	bucket := at.UTC().Truncate(EventBucket).Format("2006010215")
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + bucket
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.unlocked[userID] = true
	return true, nil
}
