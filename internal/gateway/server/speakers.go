// Package server 演讲人聚合与工作流接口
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/containerd/errdefs"

	"podium-gateway/internal/gateway/workflow"
)

// GetSpeakerProfile 演讲人复合视图接口
//
// 路由: GET /api/v1/speakers/{id}/profile
//
// 聚合 speaker / draft / evaluation 三个服务的数据。必需调用失败返回 404；
// 可选分区失败不影响状态码，失败信息记在对应分区的 error 字段里。
func (h *Handler) GetSpeakerProfile(w http.ResponseWriter, r *http.Request) {
	speakerID := r.PathValue("id")
	if speakerID == "" {
		writeError(w, http.StatusBadRequest, "speaker id required")
		return
	}

	profile, err := h.aggregator.SpeakerProfile(r.Context(), speakerID, r.Header)
	if err != nil {
		switch {
		case errdefs.IsNotFound(err):
			writeError(w, http.StatusNotFound, err.Error())
		case errdefs.IsUnavailable(err):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	h.metrics.RecordAggregation(profile.Summary.ServicesHealthy, profile.Summary.ServicesTotal)
	writeJSON(w, http.StatusOK, profile)
}

// GenerateDraft 终稿生成工作流接口
//
// 路由: POST /api/v1/speakers/{id}/drafts/generate
//
// 请求体（可为空）：{"prompt": "...", "context": "..."}
//
// 状态码由执行记录的结局决定，响应体始终是完整的执行记录：
//   - completed           → 200
//   - speaker_not_found   → 404
//   - missing_notes       → 422
//   - generation_failed   → 502
func (h *Handler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	speakerID := r.PathValue("id")
	if speakerID == "" {
		writeError(w, http.StatusBadRequest, "speaker id required")
		return
	}

	// 空请求体合法：全部使用默认值
	var req workflow.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := h.orchestrator.GenerateFinalDraft(r.Context(), speakerID, req)
	h.metrics.RecordWorkflowRun(record.Status)
	writeJSON(w, statusFromRecord(record), record)
}

// statusFromRecord 把执行记录的结局映射为 HTTP 状态码
func statusFromRecord(record *workflow.ExecutionRecord) int {
	if record.Status == workflow.StatusCompleted {
		return http.StatusOK
	}
	switch record.ErrorCode {
	case workflow.ErrCodeSpeakerNotFound:
		return http.StatusNotFound
	case workflow.ErrCodeMissingNotes:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
