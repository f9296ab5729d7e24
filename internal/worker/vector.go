// Package worker 向量生成工作器
//
// 订阅 DraftIngested 事件，调用 RAG 服务为新入库的讲稿素材（重）建向量索引，
// 完成后发布 VectorsGenerated。消费端是至少一次投递：副作用以 EventID
// 为幂等键，重投递不会重复建向量。
package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/shared/cache"
	"podium-gateway/internal/shared/eventbus"
)

// ConsumerName 幂等键命名空间（区分不同消费者对同一事件的处理）
const ConsumerName = "vector-worker"

// VectorWorker 向量生成工作器
type VectorWorker struct {
	client    *proxy.Client
	publisher eventbus.Publisher
	cache     cache.IdempotencyCache
}

// NewVectorWorker 创建工作器
//
// publisher 可为 nil（不发布完成事件），cache 为 nil 时退化为 NoOp（不去重）。
func NewVectorWorker(client *proxy.Client, publisher eventbus.Publisher, idem cache.IdempotencyCache) *VectorWorker {
	if idem == nil {
		idem = cache.NewNoOpCache()
	}
	return &VectorWorker{client: client, publisher: publisher, cache: idem}
}

// Register 把处理函数挂到消费方
func (w *VectorWorker) Register(consumer eventbus.Consumer) {
	consumer.RegisterHandler(eventbus.EventDraftIngested, w.HandleDraftIngested)
}

// HandleDraftIngested 处理 DraftIngested 事件
//
// 流程：
//  1. 幂等检查——重复投递直接跳过
//  2. 调用 RAG 服务建向量
//  3. 发布 VectorsGenerated（causation 指向触发事件）
//
// RAG 调用失败时释放幂等标记并返回错误，消息会重新入队。
func (w *VectorWorker) HandleDraftIngested(ctx context.Context, envelope *eventbus.Envelope) error {
	draftID, _ := envelope.Payload["draft_id"].(string)
	if draftID == "" {
		draftID = envelope.AggregateID
	}
	if draftID == "" {
		// 结构有效但内容缺失：重试无意义，直接确认
		log.Printf("[vector-worker] DraftIngested %s 缺少 draft_id，跳过", envelope.EventID)
		return nil
	}
	speakerID, _ := envelope.Payload["speaker_id"].(string)

	first, err := w.cache.MarkProcessed(ctx, ConsumerName, envelope.EventID, 0)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !first {
		log.Printf("[vector-worker] 事件 %s 已处理过，跳过重投递", envelope.EventID)
		return nil
	}

	payload := map[string]interface{}{"draft_id": draftID}
	if speakerID != "" {
		payload["speaker_id"] = speakerID
	}
	result, err := w.client.Do(ctx, "rag", http.MethodPost, "/api/v1/rag/vectorize", payload, nil)
	if err != nil {
		// 释放标记，让重投递有机会重试
		if clearErr := w.cache.ClearProcessed(ctx, ConsumerName, envelope.EventID); clearErr != nil {
			log.Printf("[vector-worker] 释放幂等标记失败: %v", clearErr)
		}
		return fmt.Errorf("vectorize draft %s: %w", draftID, err)
	}

	log.Printf("[vector-worker] 讲稿 %s 向量已生成", draftID)
	w.publishVectorsGenerated(ctx, envelope, draftID, speakerID, result)
	return nil
}

// publishVectorsGenerated 尽力而为地发布完成事件
func (w *VectorWorker) publishVectorsGenerated(ctx context.Context, cause *eventbus.Envelope, draftID, speakerID string, result interface{}) {
	if w.publisher == nil {
		return
	}

	payload := map[string]interface{}{
		"draft_id": draftID,
	}
	if speakerID != "" {
		payload["speaker_id"] = speakerID
	}
	if m, ok := result.(map[string]interface{}); ok {
		if count, ok := m["vector_count"]; ok {
			payload["vector_count"] = count
		}
	}

	correlation := cause.CorrelationID
	if correlation == "" {
		correlation = cause.EventID
	}
	envelope := eventbus.NewEnvelope(eventbus.EventVectorsGenerated, draftID, "draft", payload,
		eventbus.WithCorrelation(correlation),
		eventbus.WithCausation(cause.EventID),
	)
	if err := w.publisher.Publish(ctx, envelope, ""); err != nil {
		log.Printf("[vector-worker] 发布 VectorsGenerated 失败（忽略）: %v", err)
	}
}
