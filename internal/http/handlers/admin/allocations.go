package admin

import (
	"errors"

	"github.com/contact-dispatch/internal/allocation"
	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckConflictsRequest 区间冲突检查请求
type CheckConflictsRequest struct {
	Assignments []service.Assignment `json:"assignments" binding:"required"`
}

// NextRangeRequest 下一空闲区间请求
type NextRangeRequest struct {
	Existing  []allocation.Range `json:"existing"`
	Count     int64              `json:"count" binding:"required"`
	DeviceIDs []string           `json:"device_ids"`
}

// AllocateRequest 为设备分配号码请求
type AllocateRequest struct {
	DeviceID      string `json:"device_id" binding:"required"`
	Count         int    `json:"count"`
	Industry      string `json:"industry"`
	SkipIfPending bool   `json:"skip_if_pending"`
}

// CheckConflicts 检查设备区间重叠
func (h *Handler) CheckConflicts(c *gin.Context) {
	var req CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	conflicts := h.AllocationService.CheckConflicts(req.Assignments)
	if conflicts == nil {
		conflicts = []allocation.Conflict{}
	}
	response.Success(c, gin.H{
		"conflicts": conflicts,
		"ok":        len(conflicts) == 0,
	})
}

// NextRange 计算下一空闲区间；传入 device_ids 时为每台设备依次分配
func (h *Handler) NextRange(c *gin.Context) {
	var req NextRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if len(req.DeviceIDs) > 0 {
		assigned, err := h.AllocationService.BulkAssign(req.DeviceIDs, req.Existing, req.Count)
		if err != nil {
			respondAllocationError(c, err)
			return
		}
		response.Success(c, gin.H{"assignments": assigned})
		return
	}
	next, err := h.AllocationService.NextRange(req.Existing, req.Count)
	if err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Success(c, gin.H{"range": next})
}

// Allocate 为设备占用号码、生成批次并创建待导入会话
func (h *Handler) Allocate(c *gin.Context) {
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if req.Count == 0 {
		req.Count = h.Config.Import.DefaultAllocationCount
	}
	result, err := h.AllocationService.AllocateToDevice(c.Request.Context(), service.AllocateInput{
		DeviceID:      req.DeviceID,
		Count:         req.Count,
		Industry:      req.Industry,
		SkipIfPending: req.SkipIfPending,
	})
	if err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Success(c, result)
}

func respondAllocationError(c *gin.Context, err error) {
	var conflictErr *service.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		response.ErrorWithData(c, response.CodeConflict, conflictErr.Error(), gin.H{"conflicts": conflictErr.Conflicts})
	case errors.Is(err, service.ErrDeviceIDRequired):
		respondError(c, response.CodeBadRequest, "error.device_id_required", nil)
	case errors.Is(err, service.ErrAllocationCountZero):
		respondError(c, response.CodeBadRequest, "error.allocation_count_zero", nil)
	case errors.Is(err, service.ErrNumberRangeInvalid):
		respondError(c, response.CodeBadRequest, "error.number_range_invalid", nil)
	case errors.Is(err, service.ErrAllocationBusy):
		respondError(c, response.CodeConflict, "error.allocation_busy", nil)
	case errors.Is(err, service.ErrReservationConflict):
		respondError(c, response.CodeConflict, "error.reservation_conflict", nil)
	case errors.Is(err, service.ErrReservationEmpty):
		respondError(c, response.CodeNotFound, "error.reservation_empty", nil)
	case errors.Is(err, service.ErrConsumptionStrategyRequired):
		respondError(c, response.CodeBadRequest, "error.consumption_strategy_required", nil)
	case errors.Is(err, service.ErrConsumptionStrategyInvalid):
		respondError(c, response.CodeBadRequest, "error.consumption_strategy_invalid", nil)
	default:
		respondError(c, response.CodeInternal, "error.allocation_failed", err)
	}
}
