package campaigns

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"callcenter-platform/pkg/utils"
)

// Limiter bounds how many campaign calls can be in flight at once.
type Limiter interface {
	Acquire(ctx context.Context, campaignID string, limit int) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

// slotTTL caps how long a dial slot can be held. A crashed process releases
// its slots when the TTL lapses.
const slotTTL = 15 * time.Minute

// RedisLimiter counts in-flight dials in redis, shared across instances.
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, slotKey(campaignID), limit, slotTTL)
}

func (l *RedisLimiter) Release(ctx context.Context, campaignID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, slotKey(campaignID))
}

func slotKey(campaignID string) string {
	return "campaign:dialcap:" + campaignID
}

// MemoryLimiter is a process-local Limiter for tests and single-instance runs.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: map[string]int{}}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[campaignID] >= limit {
		return false, nil
	}
	l.counts[campaignID]++
	return true, nil
}

func (l *MemoryLimiter) Release(ctx context.Context, campaignID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[campaignID] > 0 {
		l.counts[campaignID]--
	}
	if l.counts[campaignID] == 0 {
		delete(l.counts, campaignID)
	}
	return nil
}
