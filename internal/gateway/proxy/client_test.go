// Package proxy 后端服务客户端测试
package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-gateway/internal/shared/registry"
)

func newTestClient(t *testing.T, services map[string]string) *Client {
	t.Helper()
	reg, err := registry.New(services)
	require.NoError(t, err)
	return NewClient(reg, 2*time.Second)
}

// TestDo_GetEncodesQueryAndForwardsAuth GET 请求编码查询参数并转发 Authorization
func TestDo_GetEncodesQueryAndForwardsAuth(t *testing.T) {
	var gotAuth, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("speaker_id")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"drafts": [], "total": 0}`))
	}))
	defer backend.Close()

	c := newTestClient(t, map[string]string{"draft": backend.URL})

	headers := http.Header{}
	headers.Set("Authorization", "Bearer token-123")

	result, err := c.Do(context.Background(), "draft", http.MethodGet, "/api/v1/drafts",
		map[string]interface{}{"speaker_id": "spk-001"}, headers)
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "spk-001", gotQuery)

	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), m["total"])
}

// TestDo_PostEncodesJSONBody 非 GET 请求把数据编码为 JSON 请求体
func TestDo_PostEncodesJSONBody(t *testing.T) {
	var gotContentType string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"draft_id": "draft-new"}`))
	}))
	defer backend.Close()

	c := newTestClient(t, map[string]string{"rag": backend.URL})

	result, err := c.Do(context.Background(), "rag", http.MethodPost, "/api/v1/rag/generate",
		map[string]interface{}{"speaker_id": "spk-001", "prompt": "开场白"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	m := result.(map[string]interface{})
	assert.Equal(t, "draft-new", m["draft_id"])
}

// TestDo_UpstreamErrorRelayedUnchanged 非 2xx 响应原样透传，不做翻译
func TestDo_UpstreamErrorRelayedUnchanged(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "speaker not found"}`))
	}))
	defer backend.Close()

	c := newTestClient(t, map[string]string{"speaker": backend.URL})

	_, err := c.Do(context.Background(), "speaker", http.MethodGet, "/api/v1/speakers/missing", nil, nil)
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.Status)
	assert.True(t, upstream.IsNotFound())
	assert.JSONEq(t, `{"error": "speaker not found"}`, string(upstream.Body))
}

// TestDo_TransportFailure 传输层故障归入 Unavailable
func TestDo_TransportFailure(t *testing.T) {
	// 端口未监听
	c := newTestClient(t, map[string]string{"speaker": "http://127.0.0.1:1"})

	_, err := c.Do(context.Background(), "speaker", http.MethodGet, "/api/v1/speakers/spk-001", nil, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
}

// TestDo_UnknownService 未注册的服务名归入 NotFound
func TestDo_UnknownService(t *testing.T) {
	c := newTestClient(t, map[string]string{"speaker": "http://localhost:8081"})

	_, err := c.Do(context.Background(), "billing", http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

// TestForward_RelaysStatusAndBody 透明转发保留上游状态码与响应体
func TestForward_RelaysStatusAndBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/speakers/spk-001", r.URL.Path)
		assert.Equal(t, "full=true", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"odd": "status"}`))
	}))
	defer backend.Close()

	c := newTestClient(t, map[string]string{"speaker": backend.URL})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy/speaker/api/v1/speakers/spk-001?full=true", nil)
	rec := httptest.NewRecorder()
	c.Forward(rec, req, "speaker", "/api/v1/speakers/spk-001")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"odd": "status"}`, rec.Body.String())
}

// TestForward_UnavailableBackend 传输层故障映射为 503
func TestForward_UnavailableBackend(t *testing.T) {
	c := newTestClient(t, map[string]string{"speaker": "http://127.0.0.1:1"})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c.Forward(rec, req, "speaker", "/x")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestForward_UnknownService 未知服务映射为 404
func TestForward_UnknownService(t *testing.T) {
	c := newTestClient(t, map[string]string{"speaker": "http://localhost:8081"})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c.Forward(rec, req, "billing", "/x")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
