// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含所有网关指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 代理指标
	ProxyRequestsTotal *prometheus.CounterVec

	// 聚合指标
	AggregationSectionsHealthy prometheus.Histogram

	// 工作流指标
	WorkflowRunsTotal *prometheus.CounterVec

	// WebSocket 指标
	WSConnectionsActive  prometheus.Gauge
	EventsBroadcastTotal *prometheus.CounterVec

	// 事件消费指标
	EventsConsumedTotal *prometheus.CounterVec
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ProxyRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "Total proxied requests by backend service",
			},
			[]string{"service"},
		),
		AggregationSectionsHealthy: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_health_ratio",
				Help:      "Healthy optional sections ratio per aggregation call",
				Buckets:   []float64{0, 0.25, 0.5, 0.75, 1},
			},
		),
		WorkflowRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Total workflow executions by outcome",
			},
			[]string{"status"},
		),
		WSConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		EventsBroadcastTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_broadcast_total",
				Help:      "Total envelopes pushed to WebSocket clients",
			},
			[]string{"type"},
		),
		EventsConsumedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Total envelopes consumed from the bus",
			},
			[]string{"type", "outcome"},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符，避免高基数
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/proxy/"):
		return "/api/v1/proxy/{service}"
	case strings.HasPrefix(path, "/api/v1/speakers/") && strings.HasSuffix(path, "/profile"):
		return "/api/v1/speakers/{id}/profile"
	case strings.HasPrefix(path, "/api/v1/speakers/") && strings.HasSuffix(path, "/drafts/generate"):
		return "/api/v1/speakers/{id}/drafts/generate"
	case strings.HasPrefix(path, "/api/v1/deadletters/"):
		return "/api/v1/deadletters/{id}"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordProxyRequest 记录一次代理转发
func (m *Metrics) RecordProxyRequest(service string) {
	m.ProxyRequestsTotal.WithLabelValues(service).Inc()
}

// RecordAggregation 记录一次聚合调用的分区健康比
func (m *Metrics) RecordAggregation(healthy, total int) {
	if total > 0 {
		m.AggregationSectionsHealthy.Observe(float64(healthy) / float64(total))
	}
}

// RecordWorkflowRun 记录一次工作流执行结局
func (m *Metrics) RecordWorkflowRun(status string) {
	m.WorkflowRunsTotal.WithLabelValues(status).Inc()
}

// RecordEventBroadcast 记录一次 WebSocket 事件推送
func (m *Metrics) RecordEventBroadcast(eventType string) {
	m.EventsBroadcastTotal.WithLabelValues(eventType).Inc()
}

// RecordEventConsumed 记录一次总线消息消费结局
func (m *Metrics) RecordEventConsumed(eventType, outcome string) {
	m.EventsConsumedTotal.WithLabelValues(eventType, outcome).Inc()
}

// WSConnectionOpened WebSocket 连接打开
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}
