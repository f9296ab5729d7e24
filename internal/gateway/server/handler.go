// Package server 路由配置
package server

import (
	"net/http"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查与指标:
//   - GET /health  - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 通用代理:
//   - ANY /api/v1/proxy/{service}/{path...} - 透明转发到后端服务
//
// 演讲人 (Speaker):
//   - GET  /api/v1/speakers/{id}/profile         - 复合视图聚合
//   - POST /api/v1/speakers/{id}/drafts/generate - 终稿生成工作流
//
// 死信 (DeadLetter):
//   - GET    /api/v1/deadletters      - 列出死信
//   - GET    /api/v1/deadletters/{id} - 获取死信详情
//   - DELETE /api/v1/deadletters/{id} - 删除死信
//
// WebSocket:
//   - GET /ws/events - 实时事件推送（可选 types 过滤）
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// 通用代理（不限方法）
	mux.HandleFunc("/api/v1/proxy/{service}/{path...}", h.ProxyRequest)

	// Speaker 接口
	mux.HandleFunc("GET /api/v1/speakers/{id}/profile", h.GetSpeakerProfile)
	mux.HandleFunc("POST /api/v1/speakers/{id}/drafts/generate", h.GenerateDraft)

	// 死信接口
	mux.HandleFunc("GET /api/v1/deadletters", h.ListDeadLetters)
	mux.HandleFunc("GET /api/v1/deadletters/{id}", h.GetDeadLetter)
	mux.HandleFunc("DELETE /api/v1/deadletters/{id}", h.DeleteDeadLetter)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用 CORS 中间件
	corsHandler := corsMiddleware(apiHandler)

	// 创建顶层路由，WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/events", h.eventGateway.HandleWebSocket)
	topMux.Handle("/", corsHandler)

	return topMux
}

// ProxyRequest 通用代理接口
//
// 路由: ANY /api/v1/proxy/{service}/{path...}
//
// 把请求透明转发到 service 对应的后端地址，状态码与响应体原样回写。
func (h *Handler) ProxyRequest(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	path := "/" + r.PathValue("path")
	h.metrics.RecordProxyRequest(service)
	h.client.Forward(w, r, service, path)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
