// Package worker 向量生成工作器测试
package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/shared/cache"
	"podium-gateway/internal/shared/eventbus"
	"podium-gateway/internal/shared/registry"
)

func newTestWorker(t *testing.T, ragURL string) (*VectorWorker, *eventbus.MemoryPublisher, *cache.MemoryCache) {
	t.Helper()
	reg, err := registry.New(map[string]string{"rag": ragURL})
	require.NoError(t, err)

	pub := eventbus.NewMemoryPublisher()
	idem := cache.NewMemoryCache()
	return NewVectorWorker(proxy.NewClient(reg, 2*time.Second), pub, idem), pub, idem
}

func ingestedEnvelope() *eventbus.Envelope {
	return eventbus.NewEnvelope(eventbus.EventDraftIngested, "draft-1", "draft",
		map[string]interface{}{"draft_id": "draft-1", "speaker_id": "spk-001"})
}

// TestHandleDraftIngested_Success 成功建向量并发布完成事件
func TestHandleDraftIngested_Success(t *testing.T) {
	var gotBody map[string]interface{}
	rag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rag/vectorize", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vector_count": 12}`))
	}))
	defer rag.Close()

	w, pub, _ := newTestWorker(t, rag.URL)
	envelope := ingestedEnvelope()

	require.NoError(t, w.HandleDraftIngested(context.Background(), envelope))

	assert.Equal(t, "draft-1", gotBody["draft_id"])
	assert.Equal(t, "spk-001", gotBody["speaker_id"])

	messages := pub.Messages()
	require.Len(t, messages, 1)
	out := messages[0].Envelope
	assert.Equal(t, eventbus.EventVectorsGenerated, out.EventType)
	assert.Equal(t, "draft-1", out.AggregateID)
	assert.Equal(t, float64(12), out.Payload["vector_count"])
	// 因果链指向触发事件
	assert.Equal(t, envelope.EventID, out.CausationID)
}

// TestHandleDraftIngested_DuplicateSkipped 重投递不重复建向量
func TestHandleDraftIngested_DuplicateSkipped(t *testing.T) {
	var calls atomic.Int32
	rag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"vector_count": 3}`))
	}))
	defer rag.Close()

	w, pub, _ := newTestWorker(t, rag.URL)
	envelope := ingestedEnvelope()

	require.NoError(t, w.HandleDraftIngested(context.Background(), envelope))
	require.NoError(t, w.HandleDraftIngested(context.Background(), envelope))

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, pub.Messages(), 1)
}

// TestHandleDraftIngested_FailureReleasesMark RAG 失败返回错误并释放幂等标记
func TestHandleDraftIngested_FailureReleasesMark(t *testing.T) {
	var calls atomic.Int32
	rag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "index rebuild in progress"}`))
			return
		}
		w.Write([]byte(`{"vector_count": 5}`))
	}))
	defer rag.Close()

	w, pub, _ := newTestWorker(t, rag.URL)
	envelope := ingestedEnvelope()

	// 首次失败：消息会重新入队
	require.Error(t, w.HandleDraftIngested(context.Background(), envelope))
	assert.Empty(t, pub.Messages())

	// 重投递后成功：标记已释放，不被当作重复
	require.NoError(t, w.HandleDraftIngested(context.Background(), envelope))
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, pub.Messages(), 1)
}

// TestHandleDraftIngested_MissingDraftID 缺少 draft_id 直接确认，不调用 RAG
func TestHandleDraftIngested_MissingDraftID(t *testing.T) {
	var calls atomic.Int32
	rag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer rag.Close()

	w, pub, _ := newTestWorker(t, rag.URL)
	envelope := eventbus.NewEnvelope(eventbus.EventDraftIngested, "", "draft", map[string]interface{}{})

	require.NoError(t, w.HandleDraftIngested(context.Background(), envelope))
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, pub.Messages())
}

// TestRegister 处理函数挂到 DraftIngested 类型
func TestRegister(t *testing.T) {
	w, _, _ := newTestWorker(t, "http://localhost:8083")

	consumer := &recordingConsumer{handlers: map[string]int{}}
	w.Register(consumer)
	assert.Equal(t, 1, consumer.handlers[eventbus.EventDraftIngested])
}

// recordingConsumer 只记录注册情况的 Consumer 替身
type recordingConsumer struct {
	handlers map[string]int
}

func (c *recordingConsumer) Connect(ctx context.Context, queueName string, prefetchCount int) error {
	return nil
}
func (c *recordingConsumer) RegisterHandler(eventType string, handler eventbus.Handler) {
	c.handlers[eventType]++
}
func (c *recordingConsumer) Start(ctx context.Context) error { return nil }
func (c *recordingConsumer) Stop() error                     { return nil }
func (c *recordingConsumer) HealthCheck() eventbus.ConsumerHealth {
	return eventbus.ConsumerHealth{}
}
