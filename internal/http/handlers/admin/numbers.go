package admin

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

const maxNumberImportBody = 8 << 20

// ImportNumbersRequest 号码导入请求（JSON 方式）
type ImportNumbersRequest struct {
	Content    string `json:"content" binding:"required"`
	SourceFile string `json:"source_file"`
}

// ImportNumbers 导入号码文本，支持 JSON 或纯文本请求体
func (h *Handler) ImportNumbers(c *gin.Context) {
	var content, sourceFile string
	if strings.Contains(c.ContentType(), "json") {
		var req ImportNumbersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
		content, sourceFile = req.Content, req.SourceFile
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNumberImportBody))
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
		content = string(body)
		sourceFile = c.Query("source_file")
	}

	result, err := h.NumberPoolService.ImportFromText(c.Request.Context(), content, sourceFile)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNumberImportEmpty):
			respondError(c, response.CodeBadRequest, "error.number_import_empty", nil)
		default:
			respondError(c, response.CodeInternal, "error.number_import_failed", err)
		}
		return
	}
	response.Success(c, result)
}

// GetNumbers 分页查询号码
func (h *Handler) GetNumbers(c *gin.Context) {
	page, pageSize := queryPagination(c)
	filter := repository.ContactNumberListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Industry: strings.TrimSpace(c.Query("industry")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("used"); raw != "" {
		used, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
		filter.Used = &used
	}

	items, total, err := h.NumberPoolService.ListNumbers(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.number_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetNumberStats 号码池统计
func (h *Handler) GetNumberStats(c *gin.Context) {
	stats, err := h.NumberPoolService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.number_stats_failed", err)
		return
	}
	response.Success(c, stats)
}
