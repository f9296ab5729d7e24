// Package cache 投递辅助缓存抽象接口
//
// 为事件消费方提供两类能力，当前由 Redis 实现：
//   - DeliveryTracker：按消息维度统计投递次数（有界重试策略）
//   - IdempotencyCache：以 EventID 为幂等键去重副作用
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// DeliveryTracker 投递次数跟踪接口
//
// 处理失败的消息会被重新入队；启用有界重试时，
// 消费方用此接口统计同一消息的投递次数，超限后转入死信归档。
type DeliveryTracker interface {
	// IncrDeliveryAttempts 递增并返回指定消息的投递次数
	IncrDeliveryAttempts(ctx context.Context, queue, eventID string) (int64, error)
	// ClearDeliveryAttempts 处理成功后清除计数
	ClearDeliveryAttempts(ctx context.Context, queue, eventID string) error
}

// IdempotencyCache 幂等去重接口
//
// 重投递会重跑同一消息的全部处理函数；副作用不可重入的处理函数
// 应在执行前调用 MarkProcessed，仅在首次标记成功时执行副作用，
// 执行失败时调用 ClearProcessed 释放标记，让重投递有机会重试。
type IdempotencyCache interface {
	// MarkProcessed 标记事件已被指定消费者处理
	// 返回 true 表示首次标记（应执行副作用），false 表示重复投递
	MarkProcessed(ctx context.Context, consumer, eventID string, ttl time.Duration) (bool, error)
	// ClearProcessed 释放标记（处理失败时调用）
	ClearProcessed(ctx context.Context, consumer, eventID string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 投递辅助缓存组合接口
type Cache interface {
	DeliveryTracker
	IdempotencyCache
	Close() error
}
