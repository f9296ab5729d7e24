// Package proxy 后端服务 HTTP 客户端
//
// 网关出站调用的统一入口：按逻辑服务名解析地址、转发 Authorization、
// 应用出站超时，并把故障归入三类：
//   - errdefs.ErrUnavailable：传输层故障（未收到响应）→ 边界映射 503
//   - *UpstreamError：上游返回非 2xx，状态码与响应体原样透传，不做翻译
//   - errdefs.ErrInvalidArgument / 其他本地错误 → 边界映射 500
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"podium-gateway/internal/shared/registry"
)

// UpstreamError 上游服务的非 2xx 响应（透明转发，不重新解释）
type UpstreamError struct {
	Service     string
	Status      int
	Body        []byte
	ContentType string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.Service, e.Status)
}

// IsNotFound 上游是否返回 404
func (e *UpstreamError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// Client 后端服务客户端
//
// 每次出站调用都带有界超时；HTTP client 由本实例独占。
type Client struct {
	registry *registry.Registry
	http     *http.Client
}

// NewClient 创建客户端
func NewClient(reg *registry.Registry, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		registry: reg,
		http:     &http.Client{Timeout: timeout},
	}
}

// Registry 返回底层服务注册表
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Do 发起一次后端调用并解码 JSON 响应
//
// GET 请求把 data 编码为查询参数，其余方法编码为 JSON 请求体。
// headers 中的 Authorization 原样转发（只转发，不检查）。
func (c *Client) Do(ctx context.Context, service, method, path string, data map[string]interface{}, headers http.Header) (interface{}, error) {
	baseURL, err := c.registry.Resolve(service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrNotFound, err)
	}

	reqURL := baseURL + path
	var body io.Reader

	if method == http.MethodGet {
		if len(data) > 0 {
			query := url.Values{}
			for key, value := range data {
				query.Set(key, fmt.Sprintf("%v", value))
			}
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			reqURL += sep + query.Encode()
		}
	} else if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request body: %v", errdefs.ErrInvalidArgument, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", errdefs.ErrInvalidArgument, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := headers.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// 未收到响应：传输层故障
		return nil, fmt.Errorf("%w: service %s unreachable: %v", errdefs.ErrUnavailable, service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response from %s: %v", errdefs.ErrUnavailable, service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Service:     service,
			Status:      resp.StatusCode,
			Body:        respBody,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}

	if len(respBody) == 0 {
		return nil, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", service, err)
	}
	return decoded, nil
}

// Forward 把网关收到的请求透明转发到后端服务
//
// 状态码与响应体原样回写；传输层故障回 503，未知服务回 404。
func (c *Client) Forward(w http.ResponseWriter, r *http.Request, service, path string) {
	baseURL, err := c.registry.Resolve(service)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown service %q", service))
		return
	}

	reqURL := baseURL + path
	if r.URL.RawQuery != "" {
		reqURL += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, reqURL, r.Body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("service %s unavailable", service))
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
