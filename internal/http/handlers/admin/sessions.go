package admin

import (
	"errors"
	"strings"

	handlershared "github.com/contact-dispatch/internal/http/handlers/shared"
	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

// RevertSessionRequest 撤回会话请求
type RevertSessionRequest struct {
	Reason string `json:"reason"`
}

// UpdateSessionIndustryRequest 更新会话行业请求
type UpdateSessionIndustryRequest struct {
	Industry   string `json:"industry"`
	TagNumbers bool   `json:"tag_numbers"`
}

// ReimportSessionsRequest 重新导入请求
type ReimportSessionsRequest struct {
	Rows      []service.ReimportRow `json:"rows" binding:"required"`
	ScriptKey string                `json:"script_key"`
	Strict    *bool                 `json:"strict"`
}

// GetSessions 分页查询导入会话
func (h *Handler) GetSessions(c *gin.Context) {
	page, pageSize := queryPagination(c)
	items, total, err := h.SessionLedger.ListSessions(c.Request.Context(), repository.ImportSessionListFilter{
		Page:     page,
		PageSize: pageSize,
		DeviceID: strings.TrimSpace(c.Query("device_id")),
		BatchID:  strings.TrimSpace(c.Query("batch_id")),
		Status:   strings.TrimSpace(c.Query("status")),
		Industry: strings.TrimSpace(c.Query("industry")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.session_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// RevertSession 撤回成功会话，批次号码恢复为未导入
func (h *Handler) RevertSession(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	var req RevertSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	restored, err := h.SessionLedger.RevertSession(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondSessionError(c, err, "error.session_revert_failed")
		return
	}
	requestLog(c).Infow("admin_session_reverted",
		"session_id", id,
		"restored", restored,
		"operator", handlershared.GetOperator(c),
	)
	response.Success(c, gin.H{
		"session_id": id,
		"restored":   restored,
	})
}

// UpdateSessionIndustry 更新会话行业标签，可同时标记批次号码
func (h *Handler) UpdateSessionIndustry(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	var req UpdateSessionIndustryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	ctx := c.Request.Context()
	if err := h.SessionLedger.UpdateIndustry(ctx, id, req.Industry); err != nil {
		respondSessionError(c, err, "error.session_update_failed")
		return
	}
	var tagged int64
	if req.TagNumbers {
		session, err := h.SessionLedger.GetSession(ctx, id)
		if err != nil {
			respondSessionError(c, err, "error.session_update_failed")
			return
		}
		tagged, err = h.NumberPoolService.TagIndustryByBatch(ctx, session.BatchID, req.Industry)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrBatchNotFound):
				respondError(c, response.CodeNotFound, "error.batch_not_found", nil)
			default:
				respondError(c, response.CodeInternal, "error.session_update_failed", err)
			}
			return
		}
	}
	response.Success(c, gin.H{
		"session_id": id,
		"tagged":     tagged,
	})
}

// ReimportSessions 为选中的会话重新创建会话并导入
func (h *Handler) ReimportSessions(c *gin.Context) {
	var req ReimportSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	opts := h.PendingOptions()
	if key := strings.TrimSpace(req.ScriptKey); key != "" {
		opts.ScriptKey = key
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	summary, err := h.SessionImportService.ReimportSelectedSessions(c.Request.Context(), req.Rows, opts)
	if err != nil {
		respondError(c, response.CodeInternal, "error.reimport_failed", err)
		return
	}
	response.Success(c, summary)
}

func respondSessionError(c *gin.Context, err error, fallbackKey string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		respondError(c, response.CodeNotFound, "error.session_not_found", nil)
	case errors.Is(err, service.ErrSessionTransitionInvalid):
		respondError(c, response.CodeConflict, "error.session_transition_invalid", nil)
	default:
		respondError(c, response.CodeInternal, fallbackKey, err)
	}
}
