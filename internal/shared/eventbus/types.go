// Package eventbus 事件总线类型定义
package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ============================================================================
// 事件类型常量
// ============================================================================

const (
	// EventSpeakerCreated 演讲人已创建
	EventSpeakerCreated = "SpeakerCreated"
	// EventDraftIngested 讲稿素材已入库（触发向量生成）
	EventDraftIngested = "DraftIngested"
	// EventDraftGenerated 终稿已生成
	EventDraftGenerated = "DraftGenerated"
	// EventVectorsGenerated 向量已生成
	EventVectorsGenerated = "VectorsGenerated"
	// EventEvaluationCompleted 评估已完成
	EventEvaluationCompleted = "EvaluationCompleted"
)

// EnvelopeVersion 当前事件格式版本（预留演进空间）
const EnvelopeVersion = 1

// ============================================================================
// 事件信封
// ============================================================================

// Envelope 领域事件的自描述信封
//
// 信封一经构造即视为不可变：消费方只能读取或丢弃，不得修改字段。
// EventType 同时作为默认路由键使用。
type Envelope struct {
	EventID       string                 `json:"eventId"`
	EventType     string                 `json:"eventType"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	Timestamp     time.Time              `json:"timestamp"`
	Version       int                    `json:"version"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	CausationID   string                 `json:"causationId,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Option Envelope 构造选项
type Option func(*Envelope)

// WithCorrelation 设置关联 ID（跨服务追踪因果链）
func WithCorrelation(correlationID string) Option {
	return func(e *Envelope) { e.CorrelationID = correlationID }
}

// WithCausation 设置因果 ID（直接触发本事件的上游事件）
func WithCausation(causationID string) Option {
	return func(e *Envelope) { e.CausationID = causationID }
}

// WithMetadata 设置横切元数据（追踪、操作者身份等）
func WithMetadata(metadata map[string]interface{}) Option {
	return func(e *Envelope) { e.Metadata = metadata }
}

// NewEnvelope 创建事件信封
//
// EventID 由生产方生成：毫秒时间戳 + 随机后缀，无需全局协调。
// Timestamp 取当前时间，此后不再变更。
func NewEnvelope(eventType, aggregateID, aggregateType string, payload map[string]interface{}, opts ...Option) *Envelope {
	e := &Envelope{
		EventID:       generateEventID(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now().UTC(),
		Version:       EnvelopeVersion,
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// generateEventID 生成事件唯一标识符
//
// 格式：evt-{毫秒时间戳}-{12 位十六进制随机数}
func generateEventID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return fmt.Sprintf("evt-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
