// Package cache 投递辅助缓存 mock 实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// NoOpCache - 空操作的 Cache 实现（缓存子系统可选时使用）
// ============================================================================

// NoOpCache 是一个不做任何操作的 Cache 实现
//
// 投递计数恒为 1（永不触发有界重试），幂等标记恒为首次。
type NoOpCache struct{}

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) IncrDeliveryAttempts(ctx context.Context, queue, eventID string) (int64, error) {
	return 1, nil
}
func (c *NoOpCache) ClearDeliveryAttempts(ctx context.Context, queue, eventID string) error {
	return nil
}
func (c *NoOpCache) MarkProcessed(ctx context.Context, consumer, eventID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (c *NoOpCache) ClearProcessed(ctx context.Context, consumer, eventID string) error {
	return nil
}
func (c *NoOpCache) Close() error { return nil }

// 确保 NoOpCache 实现了 Cache 接口
var _ Cache = (*NoOpCache)(nil)

// ============================================================================
// MemoryCache - 进程内 Cache 实现（用于测试和单机部署）
// ============================================================================

// MemoryCache 基于 map 的进程内实现，不处理过期
type MemoryCache struct {
	mu        sync.Mutex
	attempts  map[string]int64
	processed map[string]bool
}

// NewMemoryCache 创建 MemoryCache 实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		attempts:  make(map[string]int64),
		processed: make(map[string]bool),
	}
}

func (c *MemoryCache) IncrDeliveryAttempts(ctx context.Context, queue, eventID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := KeyDeliveryAttempts + queue + ":" + eventID
	c.attempts[key]++
	return c.attempts[key], nil
}

func (c *MemoryCache) ClearDeliveryAttempts(ctx context.Context, queue, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, KeyDeliveryAttempts+queue+":"+eventID)
	return nil
}

func (c *MemoryCache) MarkProcessed(ctx context.Context, consumer, eventID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := KeyProcessedEvents + consumer + ":" + eventID
	if c.processed[key] {
		return false, nil
	}
	c.processed[key] = true
	return true, nil
}

func (c *MemoryCache) ClearProcessed(ctx context.Context, consumer, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.processed, KeyProcessedEvents+consumer+":"+eventID)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// 确保 MemoryCache 实现了 Cache 接口
var _ Cache = (*MemoryCache)(nil)
