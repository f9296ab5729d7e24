// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpPublisher - 空操作的 Publisher 实现（事件子系统可选时使用）
// ============================================================================

// NoOpPublisher 是一个不做任何操作的 Publisher 实现
type NoOpPublisher struct{}

// NewNoOpPublisher 创建 NoOpPublisher 实例
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Connect(ctx context.Context) error { return nil }
func (p *NoOpPublisher) Publish(ctx context.Context, envelope *Envelope, routingKey string) error {
	return nil
}
func (p *NoOpPublisher) PublishObject(ctx context.Context, raw map[string]interface{}, routingKey string) error {
	return nil
}
func (p *NoOpPublisher) Disconnect() error { return nil }
func (p *NoOpPublisher) HealthCheck() PublisherHealth {
	return PublisherHealth{Connected: false}
}

// 确保 NoOpPublisher 实现了 Publisher 接口
var _ Publisher = (*NoOpPublisher)(nil)

// ============================================================================
// MemoryPublisher - 记录发布内容的 Publisher 实现（用于测试）
// ============================================================================

// PublishedMessage 一次发布调用的记录
type PublishedMessage struct {
	Envelope   *Envelope
	RoutingKey string
}

// MemoryPublisher 将发布的事件记录在内存中
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage

	// FailNext 为 true 时，下一次 Publish 返回错误（模拟总线故障）
	FailNext bool
}

// NewMemoryPublisher 创建 MemoryPublisher 实例
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Connect(ctx context.Context) error { return nil }

func (p *MemoryPublisher) Publish(ctx context.Context, envelope *Envelope, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		return context.DeadlineExceeded
	}
	if routingKey == "" {
		routingKey = envelope.EventType
	}
	p.messages = append(p.messages, PublishedMessage{Envelope: envelope, RoutingKey: routingKey})
	return nil
}

func (p *MemoryPublisher) PublishObject(ctx context.Context, raw map[string]interface{}, routingKey string) error {
	env := &Envelope{Payload: raw}
	if t, ok := raw["eventType"].(string); ok {
		env.EventType = t
	}
	return p.Publish(ctx, env, routingKey)
}

func (p *MemoryPublisher) Disconnect() error { return nil }

func (p *MemoryPublisher) HealthCheck() PublisherHealth {
	return PublisherHealth{Connected: true}
}

// Messages 返回已记录的发布内容副本
func (p *MemoryPublisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// 确保 MemoryPublisher 实现了 Publisher 接口
var _ Publisher = (*MemoryPublisher)(nil)
