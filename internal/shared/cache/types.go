// Package cache 投递辅助缓存类型定义
package cache

import "time"

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyDeliveryAttempts 投递计数 key 前缀：delivery_attempts:{queue}:{event_id}
	KeyDeliveryAttempts = "delivery_attempts:"
	// KeyProcessedEvents 幂等标记 key 前缀：processed:{consumer}:{event_id}
	KeyProcessedEvents = "processed:"

	// AttemptsTTL 投递计数的过期时间（防止残留计数无限累积）
	AttemptsTTL = 24 * time.Hour
	// DefaultIdempotencyTTL 幂等标记的默认过期时间
	DefaultIdempotencyTTL = 24 * time.Hour
)
