package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storegoals/internal/domain"
)

// GoalCache holds monthly goal definitions keyed by MonthlyGoalKey. Progress
// reports are never cached.
type GoalCache interface {
	Get(ctx context.Context, key string) (*domain.MonthlyGoal, bool, error)
	Set(ctx context.Context, key string, value *domain.MonthlyGoal, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func MonthlyGoalKey(storeID string, ownerID string, year int, month int) string {
	return fmt.Sprintf("goal:monthly:%s:%s:%04d-%02d", storeID, ownerID, year, month)
}

type NoopGoalCache struct{}

func (NoopGoalCache) Get(_ context.Context, _ string) (*domain.MonthlyGoal, bool, error) {
	return nil, false, nil
}

func (NoopGoalCache) Set(_ context.Context, _ string, _ *domain.MonthlyGoal, _ time.Duration) error {
	return nil
}

func (NoopGoalCache) Delete(_ context.Context, _ string) error {
	return nil
}

// MemoryGoalCache is an in-process cache used when Redis is not configured.
type MemoryGoalCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	goal      domain.MonthlyGoal
	expiresAt time.Time
}

func NewMemoryGoalCache() *MemoryGoalCache {
	return &MemoryGoalCache{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryGoalCache) Get(_ context.Context, key string) (*domain.MonthlyGoal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	goal := cloneGoal(entry.goal)
	return &goal, true, nil
}

func (c *MemoryGoalCache) Set(_ context.Context, key string, value *domain.MonthlyGoal, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{goal: cloneGoal(*value)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryGoalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func cloneGoal(src domain.MonthlyGoal) domain.MonthlyGoal {
	dst := src
	if src.DailyWeights != nil {
		dst.DailyWeights = make(map[string]float64, len(src.DailyWeights))
		for k, v := range src.DailyWeights {
			dst.DailyWeights[k] = v
		}
	}
	return dst
}
