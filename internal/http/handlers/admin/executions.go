package admin

import (
	"strings"

	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

// ExecuteRequest 执行导入请求，未填写的参数使用配置默认值
type ExecuteRequest struct {
	Assignments         []service.Assignment     `json:"assignments" binding:"required"`
	ScriptKey           string                   `json:"script_key"`
	Strict              *bool                    `json:"strict"`
	Consumption         string                   `json:"consumption"`
	PerDeviceMaxRetries *int                     `json:"per_device_max_retries"`
	Previous            *service.ExecutionResult `json:"previous"`
}

// Execute 按设备顺序执行导入；携带 previous 时只重跑其中失败的设备
func (h *Handler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	opts := h.ExecuteOptions()
	if key := strings.TrimSpace(req.ScriptKey); key != "" {
		opts.ScriptKey = key
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	if consumption := strings.TrimSpace(req.Consumption); consumption != "" {
		opts.Consumption = consumption
	}
	if req.PerDeviceMaxRetries != nil && *req.PerDeviceMaxRetries >= 0 {
		opts.PerDeviceMaxRetries = *req.PerDeviceMaxRetries
	}

	var (
		result *service.ExecutionResult
		err    error
	)
	if req.Previous != nil {
		result, err = h.AllocationService.RetryFailed(c.Request.Context(), req.Previous, req.Assignments, opts)
	} else {
		result, err = h.AllocationService.ExecuteAssignments(c.Request.Context(), req.Assignments, opts)
	}
	if err != nil {
		respondAllocationError(c, err)
		return
	}
	requestLog(c).Infow("admin_execution_done",
		"run_id", result.RunID,
		"total", result.TotalDevices,
		"success", result.SuccessDevices,
		"failed", result.FailedDevices,
	)
	response.Success(c, result)
}
