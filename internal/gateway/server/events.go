// Package server WebSocket 事件网关
//
// 事件网关把消费方收到的总线信封实时推送给已连接的前端，
// 支持按事件类型过滤订阅。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"podium-gateway/internal/shared/eventbus"
)

// upgrader WebSocket 升级器配置
//
// CheckOrigin 当前允许所有来源，生产环境应限制。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventGateway WebSocket 事件网关
//
// 负责：
//   - 管理 WebSocket 连接与每个连接的类型过滤集
//   - 把总线信封广播给匹配的客户端
//
// 广播是尽力而为的：单个连接写失败只断开该连接，不影响其他客户端，
// 也不影响消息在总线上的确认。
type EventGateway struct {
	clients map[*websocket.Conn]*wsClient // 已连接客户端
	mu      sync.RWMutex                  // 保护 clients 映射
	metrics *Metrics
}

// wsClient 单个连接的订阅状态
type wsClient struct {
	types map[string]bool // 订阅的事件类型；空 = 全部
	mu    sync.Mutex      // 串行化对同一连接的写
}

// wants 该客户端是否订阅了此事件类型
func (c *wsClient) wants(eventType string) bool {
	if len(c.types) == 0 {
		return true
	}
	return c.types[eventType]
}

// NewEventGateway 创建事件网关实例
func NewEventGateway(metrics *Metrics) *EventGateway {
	return &EventGateway{
		clients: make(map[*websocket.Conn]*wsClient),
		metrics: metrics,
	}
}

// HandleEnvelope 实现 eventbus.Handler，把消费到的信封广播出去
//
// 永远返回 nil：推送失败不是消息处理失败，不应触发重新入队。
func (g *EventGateway) HandleEnvelope(_ context.Context, envelope *eventbus.Envelope) error {
	if g.metrics != nil {
		g.metrics.RecordEventConsumed(envelope.EventType, "broadcast")
	}
	g.Broadcast(envelope)
	return nil
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/events
//
// 查询参数：
//   - types: 逗号分隔的事件类型过滤（可选），如 types=DraftGenerated,VectorsGenerated
//
// 推送消息格式：
//
//	事件消息：{"type": "event", "data": <信封>}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	types := parseTypeFilter(r.URL.Query().Get("types"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{types: types}
	g.addClient(conn, client)
	defer g.removeClient(conn)

	log.Printf("[events] WebSocket client connected (filter: %d types)", len(types))

	g.readPump(conn, client)
}

// parseTypeFilter 解析逗号分隔的事件类型列表
func parseTypeFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	types := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = true
		}
	}
	return types
}

// addClient 添加客户端连接
func (g *EventGateway) addClient(conn *websocket.Conn, client *wsClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[conn] = client
	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
	}
}

// removeClient 移除客户端连接
func (g *EventGateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[conn]; ok {
		delete(g.clients, conn)
		if g.metrics != nil {
			g.metrics.WSConnectionClosed()
		}
	}
}

// ClientCount 当前连接数
func (g *EventGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// readPump 读取客户端消息
//
// 阻塞运行直到连接关闭。只处理心跳，其余消息忽略。
func (g *EventGateway) readPump(conn *websocket.Conn, client *wsClient) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[events] WebSocket read error: %v", err)
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil && req["type"] == "ping" {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			client.mu.Lock()
			conn.WriteJSON(map[string]string{"type": "pong"})
			client.mu.Unlock()
		}
	}
}

// Broadcast 把信封广播给所有匹配过滤条件的客户端
//
// 写失败的连接直接关闭，由对应的 readPump 退出后清理。
func (g *EventGateway) Broadcast(envelope *eventbus.Envelope) {
	g.mu.RLock()
	targets := make(map[*websocket.Conn]*wsClient, len(g.clients))
	for conn, client := range g.clients {
		if client.wants(envelope.EventType) {
			targets[conn] = client
		}
	}
	g.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := map[string]interface{}{
		"type": "event",
		"data": envelope,
	}

	for conn, client := range targets {
		client.mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := conn.WriteJSON(msg)
		client.mu.Unlock()
		if err != nil {
			log.Printf("[events] broadcast error: %v", err)
			conn.Close()
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordEventBroadcast(envelope.EventType)
		}
	}
}
