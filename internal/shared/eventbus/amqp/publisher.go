// Package amqp RabbitMQ 事件总线实现
//
// 基于 AMQP 0-9-1 协议（github.com/rabbitmq/amqp091-go）：
//   - Publisher：声明持久化 topic exchange，按路由键发布持久化消息
//   - Consumer：prefetch 背压 + 按事件类型分发 + ack/nack 语义
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"podium-gateway/internal/shared/eventbus"
)

// ErrNotConnected 在未调用 Connect 前发布属于编程错误，快速失败
var ErrNotConnected = errors.New("event publisher is not connected")

// Publisher RabbitMQ 事件发布器
//
// 连接与通道由本实例独占，多个逻辑发布方应各自持有实例。
// 保证 at-least-once 递交：Publish 返回 nil 即消息已交付 broker。
// 发布失败不在内部重试，由调用方决定重试、丢弃或升级。
type Publisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewPublisher 创建发布器（不建立连接）
func NewPublisher(url, exchange string) *Publisher {
	return &Publisher{url: url, exchange: exchange}
}

// Connect 建立连接并声明持久化 topic exchange
//
// 幂等：已连接时直接返回。连接失败向调用方传播错误，
// 调用方可选择把事件子系统当作可选能力继续运行。
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.conn.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// topic exchange：durable，按路由键投递到绑定队列
	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = channel
	log.Printf("[eventbus] Publisher connected, exchange=%s", p.exchange)
	return nil
}

// Publish 发布事件信封
//
// 消息体为 JSON 序列化的信封；event_id/event_type/aggregate_id/correlation_id
// 同时写入消息头，便于 broker 侧不反序列化消息体即可过滤与排查。
// routingKey 为空时使用 envelope.EventType。
func (p *Publisher) Publish(ctx context.Context, envelope *eventbus.Envelope, routingKey string) error {
	if envelope == nil {
		return errors.New("envelope is nil")
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if routingKey == "" {
		routingKey = envelope.EventType
	}

	headers := amqp091.Table{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	}
	if envelope.CorrelationID != "" {
		headers["correlation_id"] = envelope.CorrelationID
	}

	return p.publish(ctx, routingKey, body, headers)
}

// PublishObject 发布未类型化的原始 map
//
// 供尚未构造完整信封的生产方使用（渐进类型化迁移），发布路径与 Publish 一致。
func (p *Publisher) PublishObject(ctx context.Context, raw map[string]interface{}, routingKey string) error {
	if routingKey == "" {
		return errors.New("routing key is required for raw publish")
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := amqp091.Table{}
	for _, key := range []string{"eventId", "eventType", "aggregateId", "correlationId"} {
		if v, ok := raw[key].(string); ok && v != "" {
			headers[headerName(key)] = v
		}
	}

	return p.publish(ctx, routingKey, body, headers)
}

// publish 发布已序列化的消息体（持久化投递）
func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte, headers amqp091.Table) error {
	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()

	if channel == nil {
		return ErrNotConnected
	}

	err := channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", p.exchange, routingKey, err)
	}
	return nil
}

// Disconnect 关闭通道与连接，未连接时调用也安全
func (p *Publisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			lastErr = err
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			lastErr = err
		}
		p.conn = nil
	}
	return lastErr
}

// HealthCheck 返回连接状态，无副作用
func (p *Publisher) HealthCheck() eventbus.PublisherHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return eventbus.PublisherHealth{
		Connected: p.channel != nil && p.conn != nil && !p.conn.IsClosed(),
		Exchange:  p.exchange,
	}
}

// headerName 信封字段名 → 消息头字段名
func headerName(field string) string {
	switch field {
	case "eventId":
		return "event_id"
	case "eventType":
		return "event_type"
	case "aggregateId":
		return "aggregate_id"
	case "correlationId":
		return "correlation_id"
	default:
		return field
	}
}

// 确保 Publisher 实现了 eventbus.Publisher 接口
var _ eventbus.Publisher = (*Publisher)(nil)
