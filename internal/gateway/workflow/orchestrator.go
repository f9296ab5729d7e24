// Package workflow 跨服务工作流编排
//
// 固定步骤的流水线：逐步调用后端服务，把每一步的结果记入执行记录。
// 编排器从不向调用方返回 error —— 失败是数据，不是异常；HTTP 层根据
// 记录里的 error_code 决定状态码。
package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"podium-gateway/internal/gateway/proxy"
	"podium-gateway/internal/shared/eventbus"
)

// ============================================================================
// 执行记录
// ============================================================================

// 步骤状态
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	// StepPartial 尽力而为的步骤失败但不影响整体结果
	StepPartial = "partial"
)

// 整体状态
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// 失败分类（HTTP 层据此映射状态码）
const (
	// ErrCodeSpeakerNotFound 主实体不存在 → 404
	ErrCodeSpeakerNotFound = "speaker_not_found"
	// ErrCodeMissingNotes 前置条件不满足（无素材）→ 422
	ErrCodeMissingNotes = "missing_notes"
	// ErrCodeGenerationFailed 生成后端故障 → 502
	ErrCodeGenerationFailed = "generation_failed"
)

// Step 单个步骤的执行结果
type Step struct {
	Index  int         `json:"index"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// ExecutionRecord 一次工作流执行的完整记录
//
// 返回后视为不可变。Status 为 failed 时 Error 与 ErrorCode 非空，
// Steps 只包含已执行的步骤。
type ExecutionRecord struct {
	WorkflowID  string     `json:"workflow_id"`
	SpeakerID   string     `json:"speaker_id"`
	Status      string     `json:"status"`
	Steps       []Step     `json:"steps"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
}

// appendStep 按声明顺序追加步骤
func (r *ExecutionRecord) appendStep(name, status string, data interface{}) {
	r.Steps = append(r.Steps, Step{
		Index:  len(r.Steps) + 1,
		Name:   name,
		Status: status,
		Data:   data,
	})
}

// fail 以指定分类终止执行
func (r *ExecutionRecord) fail(code, message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.FailedAt = &now
	r.Error = message
	r.ErrorCode = code
}

// complete 标记执行成功
func (r *ExecutionRecord) complete() {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
}

// ============================================================================
// 编排器
// ============================================================================

// GenerateRequest 生成终稿的调用方参数，字段均可缺省
type GenerateRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
}

// DefaultPrompt 调用方未指定提示词时使用
const DefaultPrompt = "根据演讲人的素材生成一篇完整讲稿"

// Orchestrator 工作流编排器
//
// publisher 可为 nil：生成事件是尽力而为的通知，不参与执行结果。
type Orchestrator struct {
	client    *proxy.Client
	publisher eventbus.Publisher
}

// NewOrchestrator 创建编排器
func NewOrchestrator(client *proxy.Client, publisher eventbus.Publisher) *Orchestrator {
	return &Orchestrator{client: client, publisher: publisher}
}

// GenerateFinalDraft 从演讲人素材生成终稿
//
// 固定四步：
//  1. validate_speaker    —— 必需；演讲人不存在则整体失败
//  2. check_notes         —— 素材为零是业务失败，终止执行
//  3. generate_draft      —— 调用 RAG 服务；传输或上游失败终止执行
//  4. fetch_draft_detail  —— 尽力而为；失败时该步骤记为 partial，整体仍算完成
//
// 永不返回 error：任何结局都体现在返回的执行记录里。
func (o *Orchestrator) GenerateFinalDraft(ctx context.Context, speakerID string, req GenerateRequest) *ExecutionRecord {
	record := &ExecutionRecord{
		WorkflowID: generateWorkflowID(),
		SpeakerID:  speakerID,
		StartedAt:  time.Now().UTC(),
		Steps:      []Step{},
	}

	// 步骤 1：校验主实体
	speaker, err := o.client.Do(ctx, "speaker", http.MethodGet, "/api/v1/speakers/"+speakerID, nil, nil)
	if err != nil {
		record.appendStep("validate_speaker", StepFailed, nil)
		if isUpstreamNotFound(err) {
			record.fail(ErrCodeSpeakerNotFound, fmt.Sprintf("speaker %s not found", speakerID))
		} else {
			record.fail(ErrCodeGenerationFailed, fmt.Sprintf("speaker service error: %v", err))
		}
		return record
	}
	record.appendStep("validate_speaker", StepCompleted, speaker)

	// 步骤 2：前置条件——必须已有入库素材
	notes, err := o.client.Do(ctx, "speaker", http.MethodGet, "/api/v1/speakers/"+speakerID+"/notes", nil, nil)
	if err != nil {
		record.appendStep("check_notes", StepFailed, nil)
		record.fail(ErrCodeGenerationFailed, fmt.Sprintf("failed to check notes: %v", err))
		return record
	}
	if countNotes(notes) == 0 {
		record.appendStep("check_notes", StepFailed, notes)
		record.fail(ErrCodeMissingNotes,
			fmt.Sprintf("speaker %s has no ingested notes; ingest notes before generating a draft", speakerID))
		return record
	}
	record.appendStep("check_notes", StepCompleted, notes)

	// 步骤 3：触发生成
	prompt := req.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	payload := map[string]interface{}{
		"speaker_id": speakerID,
		"prompt":     prompt,
	}
	if req.Context != "" {
		payload["context"] = req.Context
	}
	generated, err := o.client.Do(ctx, "rag", http.MethodPost, "/api/v1/rag/generate", payload, nil)
	if err != nil {
		record.appendStep("generate_draft", StepFailed, nil)
		record.fail(ErrCodeGenerationFailed, fmt.Sprintf("draft generation failed: %v", err))
		return record
	}
	record.appendStep("generate_draft", StepCompleted, generated)

	// 步骤 4：尽力而为地回查生成结果
	draftID := extractDraftID(generated)
	if draftID == "" {
		record.appendStep("fetch_draft_detail", StepPartial, nil)
	} else {
		detail, err := o.client.Do(ctx, "draft", http.MethodGet, "/api/v1/drafts/"+draftID, nil, nil)
		if err != nil {
			record.appendStep("fetch_draft_detail", StepPartial, nil)
		} else {
			record.appendStep("fetch_draft_detail", StepCompleted, detail)
		}
	}

	record.complete()
	o.publishGenerated(ctx, record, draftID)
	return record
}

// publishGenerated 尽力而为地广播生成事件，失败只记日志
func (o *Orchestrator) publishGenerated(ctx context.Context, record *ExecutionRecord, draftID string) {
	if o.publisher == nil {
		return
	}
	envelope := eventbus.NewEnvelope(eventbus.EventDraftGenerated, record.SpeakerID, "speaker",
		map[string]interface{}{
			"speaker_id":  record.SpeakerID,
			"draft_id":    draftID,
			"workflow_id": record.WorkflowID,
		},
		eventbus.WithCorrelation(record.WorkflowID),
	)
	if err := o.publisher.Publish(ctx, envelope, ""); err != nil {
		log.Printf("[workflow] 发布 DraftGenerated 事件失败（忽略）: %v", err)
	}
}

// isUpstreamNotFound 上游是否明确返回 404
func isUpstreamNotFound(err error) bool {
	var upstream *proxy.UpstreamError
	return errors.As(err, &upstream) && upstream.IsNotFound()
}

// countNotes 从素材列表响应中取数量
//
// 优先读 total 字段，否则数 notes 数组长度。
func countNotes(resp interface{}) int {
	m, ok := resp.(map[string]interface{})
	if !ok {
		return 0
	}
	if total, ok := m["total"].(float64); ok {
		return int(total)
	}
	if notes, ok := m["notes"].([]interface{}); ok {
		return len(notes)
	}
	return 0
}

// extractDraftID 从生成响应中取讲稿 ID
func extractDraftID(resp interface{}) string {
	m, ok := resp.(map[string]interface{})
	if !ok {
		return ""
	}
	if id, ok := m["draft_id"].(string); ok {
		return id
	}
	return ""
}

// generateWorkflowID 生成执行记录标识符
func generateWorkflowID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return fmt.Sprintf("wf-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
