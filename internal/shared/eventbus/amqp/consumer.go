// Package amqp RabbitMQ 事件消费实现
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"podium-gateway/internal/shared/cache"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/storage/deadletter"
)

// RetryPolicy 有界重试策略
//
// MaxAttempts = 0 保持原始行为：处理失败的消息无限次重新入队。
// MaxAttempts > 0 时需要配合 DeliveryTracker 计数，达到上限的消息
// 归档到死信存储后不再入队。
type RetryPolicy struct {
	MaxAttempts int
}

// ConsumerOption Consumer 构造选项
type ConsumerOption func(*Consumer)

// WithRetryPolicy 启用有界重试（需要投递计数器）
func WithRetryPolicy(policy RetryPolicy, tracker cache.DeliveryTracker) ConsumerOption {
	return func(c *Consumer) {
		c.retry = policy
		c.tracker = tracker
	}
}

// WithDeadLetterStore 设置死信归档存储（poison 消息与超限消息写入）
func WithDeadLetterStore(store *deadletter.Store) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetters = store
	}
}

// WithBindings 设置队列绑定的路由键（默认绑定 "#" 接收全部事件）
func WithBindings(routingKeys ...string) ConsumerOption {
	return func(c *Consumer) {
		c.bindings = routingKeys
	}
}

// Consumer RabbitMQ 事件消费器
//
// 每条消息的状态机（不会占据多个终态）：
//
//	收到 → 解析失败           → Nack（不入队，poison 策略）
//	收到 → 解析成功 → 无处理器 → Ack（无订阅者容忍）
//	收到 → 解析成功 → 全部成功 → Ack
//	收到 → 解析成功 → 任一失败 → Nack（重新入队，瞬时故障假设）
//
// 处理函数按注册顺序串行执行，首个失败中止后续处理函数。
// prefetch 是唯一的背压手段：broker 在未确认消息达到上限后暂停投递。
type Consumer struct {
	url      string
	exchange string
	bindings []string

	retry       RetryPolicy
	tracker     cache.DeliveryTracker
	deadLetters *deadletter.Store

	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	queue    string
	tag      string
	running  bool
	handlers map[string][]eventbus.Handler
}

// NewConsumer 创建消费器（不建立连接）
func NewConsumer(url, exchange string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		url:      url,
		exchange: exchange,
		bindings: []string{"#"},
		handlers: make(map[string][]eventbus.Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect 打开通道、设置 prefetch 并声明持久化队列
//
// prefetchCount 是 broker 在收到确认前最多投递的消息数，
// 处理缓慢时 broker 会暂停投递，形成背压。
func (c *Consumer) Connect(ctx context.Context, queueName string, prefetchCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to set prefetch count: %w", err)
	}

	if err := channel.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", c.exchange, err)
	}

	if _, err := channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	for _, key := range c.bindings {
		if err := channel.QueueBind(queueName, key, c.exchange, false, nil); err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to bind queue %s to %s/%s: %w", queueName, c.exchange, key, err)
		}
	}

	c.conn = conn
	c.channel = channel
	c.queue = queueName
	log.Printf("[eventbus] Consumer connected, queue=%s prefetch=%d", queueName, prefetchCount)
	return nil
}

// RegisterHandler 按注册顺序追加处理函数
//
// 注册应在 Start 之前完成；注册顺序即同一事件类型下的调用顺序。
func (c *Consumer) RegisterHandler(eventType string, handler eventbus.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// Start 开始消费，阻塞直到 ctx 取消或投递通道关闭
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.channel == nil {
		c.mu.Unlock()
		return fmt.Errorf("consumer is not connected")
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.tag = fmt.Sprintf("consumer-%s", c.queue)
	deliveries, err := c.channel.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}
	c.running = true
	c.mu.Unlock()

	log.Printf("[eventbus] Consumer started, queue=%s", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				return fmt.Errorf("delivery channel closed for queue %s", c.queue)
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch 处理单条投递，保证恰好进入一个终态
func (c *Consumer) dispatch(ctx context.Context, d amqp091.Delivery) {
	var env eventbus.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.EventType == "" {
		// poison 消息：结构性损坏无法通过重试修复，不重新入队
		log.Printf("[eventbus] Discarding unparsable message on %s: %v", c.queue, err)
		c.archive(ctx, d, &env, deadletter.ReasonPoison, 0, "unparsable message body")
		d.Nack(false, false)
		return
	}

	c.mu.Lock()
	handlers := c.handlers[env.EventType]
	c.mu.Unlock()

	// 无订阅者容忍：事件被消费并丢弃，不是错误
	if len(handlers) == 0 {
		d.Ack(false)
		return
	}

	// 串行调用，首个失败中止剩余处理函数
	var handlerErr error
	for _, handler := range handlers {
		if handlerErr = handler(ctx, &env); handlerErr != nil {
			break
		}
	}

	if handlerErr == nil {
		d.Ack(false)
		if c.tracker != nil {
			c.tracker.ClearDeliveryAttempts(ctx, c.queue, env.EventID)
		}
		return
	}

	log.Printf("[eventbus] Handler failed for %s (event=%s): %v", env.EventType, env.EventID, handlerErr)

	// 未启用有界重试：保持原始行为，视为瞬时故障无限重新入队
	if c.retry.MaxAttempts <= 0 || c.tracker == nil {
		d.Nack(false, true)
		return
	}

	attempts, err := c.tracker.IncrDeliveryAttempts(ctx, c.queue, env.EventID)
	if err != nil {
		// 计数不可用时退回重新入队，宁可多投不可丢失
		log.Printf("[eventbus] Delivery tracker error, requeueing %s: %v", env.EventID, err)
		d.Nack(false, true)
		return
	}

	if attempts < int64(c.retry.MaxAttempts) {
		d.Nack(false, true)
		return
	}

	log.Printf("[eventbus] Event %s exceeded %d attempts, dead-lettering", env.EventID, c.retry.MaxAttempts)
	c.archive(ctx, d, &env, deadletter.ReasonMaxAttempts, int(attempts), handlerErr.Error())
	c.tracker.ClearDeliveryAttempts(ctx, c.queue, env.EventID)
	d.Nack(false, false)
}

// archive 尽力而为地写入死信归档，失败只记录日志
func (c *Consumer) archive(ctx context.Context, d amqp091.Delivery, env *eventbus.Envelope, reason string, attempts int, errMsg string) {
	if c.deadLetters == nil {
		return
	}
	rec := &deadletter.Record{
		Queue:      c.queue,
		EventID:    env.EventID,
		EventType:  env.EventType,
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		Reason:     reason,
		Attempts:   attempts,
		Error:      errMsg,
	}
	if err := c.deadLetters.Archive(ctx, rec); err != nil {
		log.Printf("[eventbus] Failed to archive dead letter: %v", err)
	}
}

// Stop 标记停止并取消消费
//
// 协作式关停：已分发给处理函数的消息不会被打断。
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	if c.channel != nil {
		return c.channel.Cancel(c.tag, false)
	}
	return nil
}

// Disconnect 关闭通道与连接
func (c *Consumer) Disconnect() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			lastErr = err
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			lastErr = err
		}
		c.conn = nil
	}
	return lastErr
}

// HealthCheck 返回连接状态、运行标志和各事件类型的处理器数量
func (c *Consumer) HealthCheck() eventbus.ConsumerHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers := make(map[string]int, len(c.handlers))
	for eventType, hs := range c.handlers {
		handlers[eventType] = len(hs)
	}
	return eventbus.ConsumerHealth{
		Connected: c.channel != nil && c.conn != nil && !c.conn.IsClosed(),
		Running:   c.running,
		Queue:     c.queue,
		Handlers:  handlers,
	}
}

// 确保 Consumer 实现了 eventbus.Consumer 接口
var _ eventbus.Consumer = (*Consumer)(nil)
