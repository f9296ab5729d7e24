// Package eventbus 事件总线抽象接口
//
// 提供事件的发布/订阅能力，当前由 RabbitMQ（AMQP 0-9-1）实现。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// Handler 事件处理函数
//
// 返回非 nil 错误表示处理失败：整条消息会被重新入队（视为瞬时故障）。
// 处理函数应以 EventID 为幂等键，避免重投递造成重复副作用。
type Handler func(ctx context.Context, envelope *Envelope) error

// Publisher 事件发布接口
type Publisher interface {
	// Connect 建立连接并声明持久化 topic exchange，可安全重复调用
	Connect(ctx context.Context) error
	// Publish 发布事件信封；routingKey 为空时使用 EventType
	Publish(ctx context.Context, envelope *Envelope, routingKey string) error
	// PublishObject 发布未类型化的原始 map（渐进迁移用，路径与 Publish 相同）
	PublishObject(ctx context.Context, raw map[string]interface{}, routingKey string) error
	// Disconnect 关闭通道与连接，未连接时调用也安全
	Disconnect() error
	// HealthCheck 返回连接状态，无副作用
	HealthCheck() PublisherHealth
}

// Consumer 事件消费接口
type Consumer interface {
	// Connect 打开通道、设置 prefetch（唯一的背压手段）并声明持久化队列
	Connect(ctx context.Context, queueName string, prefetchCount int) error
	// RegisterHandler 按注册顺序追加处理函数；注册顺序即调用顺序
	RegisterHandler(eventType string, handler Handler)
	// Start 开始消费，阻塞直到 ctx 取消或通道关闭
	Start(ctx context.Context) error
	// Stop 标记停止，不强制打断在途消息（尽力而为的关停）
	Stop() error
	// HealthCheck 返回连接状态、运行标志和各事件类型的处理器数量
	HealthCheck() ConsumerHealth
}

// ============================================================================
// 健康检查结构
// ============================================================================

// PublisherHealth 发布方健康状态
type PublisherHealth struct {
	Connected bool   `json:"connected"`
	Exchange  string `json:"exchange"`
}

// ConsumerHealth 消费方健康状态
type ConsumerHealth struct {
	Connected bool           `json:"connected"`
	Running   bool           `json:"running"`
	Queue     string         `json:"queue"`
	Handlers  map[string]int `json:"handlers"`
}
