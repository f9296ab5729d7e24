// Package server 死信检视接口
package server

import (
	"net/http"
	"strconv"
)

// ListDeadLetters 列出死信
//
// 路由: GET /api/v1/deadletters
//
// 查询参数：
//   - queue: 按队列过滤（可选）
//   - limit: 返回条数，默认 50，上限 200
//   - offset: 偏移量，默认 0
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		writeError(w, http.StatusServiceUnavailable, "dead letter store not configured")
		return
	}

	queue := r.URL.Query().Get("queue")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.deadLetters.List(r.Context(), queue, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	total, err := h.deadLetters.Count(r.Context(), queue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count dead letters")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetDeadLetter 获取死信详情
//
// 路由: GET /api/v1/deadletters/{id}
func (h *Handler) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		writeError(w, http.StatusServiceUnavailable, "dead letter store not configured")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	record, err := h.deadLetters.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteDeadLetter 删除死信（人工处理完毕后清理）
//
// 路由: DELETE /api/v1/deadletters/{id}
func (h *Handler) DeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		writeError(w, http.StatusServiceUnavailable, "dead letter store not configured")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	if err := h.deadLetters.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete dead letter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
