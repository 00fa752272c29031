package admin

import (
	"errors"
	"strings"

	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

// GetBatches 分页查询 VCF 批次
func (h *Handler) GetBatches(c *gin.Context) {
	page, pageSize := queryPagination(c)
	items, total, err := h.BatchPackager.ListBatches(c.Request.Context(), repository.VcfBatchListFilter{
		Page:     page,
		PageSize: pageSize,
		DeviceID: strings.TrimSpace(c.Query("device_id")),
		Industry: strings.TrimSpace(c.Query("industry")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.batch_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetBatch 获取批次详情
func (h *Handler) GetBatch(c *gin.Context) {
	detail, err := h.BatchPackager.GetBatch(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchNotFound):
			respondError(c, response.CodeNotFound, "error.batch_not_found", nil)
		default:
			respondError(c, response.CodeInternal, "error.batch_fetch_failed", err)
		}
		return
	}
	response.Success(c, detail)
}
