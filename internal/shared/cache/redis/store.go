// Package redis Redis 投递辅助缓存实现
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"podium-gateway/internal/shared/cache"
)

// Store Redis 缓存存储
type Store struct {
	client *redis.Client
}

// NewStoreFromURL 从 URL 创建 Redis 缓存实例
func NewStoreFromURL(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Cache] Connected to %s", opts.Addr)
	return &Store{client: client}, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建缓存实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// IncrDeliveryAttempts 递增并返回指定消息的投递次数
//
// 首次递增时设置 TTL，防止失败后从未清理的计数永久残留。
func (s *Store) IncrDeliveryAttempts(ctx context.Context, queue, eventID string) (int64, error) {
	key := fmt.Sprintf("%s%s:%s", cache.KeyDeliveryAttempts, queue, eventID)

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr delivery attempts: %w", err)
	}
	if n == 1 {
		s.client.Expire(ctx, key, cache.AttemptsTTL)
	}
	return n, nil
}

// ClearDeliveryAttempts 处理成功后清除计数
func (s *Store) ClearDeliveryAttempts(ctx context.Context, queue, eventID string) error {
	key := fmt.Sprintf("%s%s:%s", cache.KeyDeliveryAttempts, queue, eventID)
	return s.client.Del(ctx, key).Err()
}

// MarkProcessed 以 SETNX 标记事件已被指定消费者处理
func (s *Store) MarkProcessed(ctx context.Context, consumer, eventID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = cache.DefaultIdempotencyTTL
	}
	key := fmt.Sprintf("%s%s:%s", cache.KeyProcessedEvents, consumer, eventID)

	first, err := s.client.SetNX(ctx, key, time.Now().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return first, nil
}

// ClearProcessed 释放幂等标记（处理失败时调用）
func (s *Store) ClearProcessed(ctx context.Context, consumer, eventID string) error {
	key := fmt.Sprintf("%s%s:%s", cache.KeyProcessedEvents, consumer, eventID)
	return s.client.Del(ctx, key).Err()
}

// 确保 Store 实现了 cache.Cache 接口
var _ cache.Cache = (*Store)(nil)
