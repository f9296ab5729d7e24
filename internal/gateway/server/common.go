// Package server 提供网关 HTTP API 处理器
//
// 本包实现演讲稿平台网关的对外接口，包括：
//   - 通用代理（透明转发到后端服务）
//   - 演讲人复合视图聚合
//   - 终稿生成工作流
//   - 死信检视接口
//   - WebSocket 实时事件推送
//
// 文件组织：
//   - common.go: 通用工具函数和 Handler 定义
//   - handler.go: 路由配置
//   - speakers.go: 聚合与工作流接口
//   - deadletters.go: 死信检视接口
//   - events.go: WebSocket 事件网关
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"podium-gateway/internal/gateway/aggregate"
	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/gateway/workflow"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/storage/deadletter"
)

// Handler 网关 API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 持有出站客户端与聚合/编排组件
//   - 协调事件网关与指标
type Handler struct {
	client       *proxy.Client            // 后端服务出站客户端
	aggregator   *aggregate.Aggregator    // 复合视图聚合器
	orchestrator *workflow.Orchestrator   // 工作流编排器
	deadLetters  *deadletter.Store        // 死信归档（可为 nil）
	publisher    eventbus.Publisher       // 事件发布方（健康检查用）
	eventGateway *EventGateway            // WebSocket 事件网关
	metrics      *Metrics                 // Prometheus 指标
	startedAt    time.Time
}

// 指标注册进程级只执行一次（promauto 向默认注册表重复注册会 panic）
var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewHandler 创建 Handler 实例
//
// deadLetters 与 publisher 均可为 nil：对应接口会降级（死信接口返回 503，
// 健康检查标记总线未连接）。
func NewHandler(client *proxy.Client, deadLetters *deadletter.Store, publisher eventbus.Publisher) *Handler {
	if publisher == nil {
		publisher = eventbus.NewNoOpPublisher()
	}
	metricsOnce.Do(func() { metricsInst = NewMetrics("gateway") })

	h := &Handler{
		client:       client,
		aggregator:   aggregate.NewAggregator(client),
		orchestrator: workflow.NewOrchestrator(client, publisher),
		deadLetters:  deadLetters,
		publisher:    publisher,
		metrics:      metricsInst,
		startedAt:    time.Now().UTC(),
	}
	h.eventGateway = NewEventGateway(h.metrics)
	return h
}

// EventGateway 返回事件网关（消费方把收到的信封交给它广播）
func (h *Handler) EventGateway() *EventGateway {
	return h.eventGateway
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 返回网关自身状态、事件总线连接状态与已注册的后端服务列表。
// 总线未连接不降级整体状态：事件子系统是可选的。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"bus":        h.publisher.HealthCheck(),
		"registry":   h.client.Registry().Services(),
		"started_at": h.startedAt,
	})
}
