package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/queue"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
)

const pendingEnqueueUnique = 30 * time.Second

// ProcessPendingRequest 处理待导入会话请求
type ProcessPendingRequest struct {
	ScriptKey string `json:"script_key"`
	Strict    *bool  `json:"strict"`
	Latest    bool   `json:"latest"`
	Limit     int    `json:"limit"`
}

func (h *Handler) bindPendingRequest(c *gin.Context) (ProcessPendingRequest, bool) {
	var req ProcessPendingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return req, false
		}
	}
	return req, true
}

// ProcessPending 同步处理设备的待导入会话
func (h *Handler) ProcessPending(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Param("device_id"))
	req, ok := h.bindPendingRequest(c)
	if !ok {
		return
	}
	opts := h.PendingOptions()
	if key := strings.TrimSpace(req.ScriptKey); key != "" {
		opts.ScriptKey = key
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}

	var (
		summary *service.PendingSummary
		err     error
	)
	if req.Latest {
		summary, err = h.SessionImportService.ProcessLatestPendingSessionForDevice(c.Request.Context(), deviceID, opts)
	} else {
		summary, err = h.SessionImportService.ProcessPendingSessionsForDevice(c.Request.Context(), deviceID, opts)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeviceIDRequired):
			respondError(c, response.CodeBadRequest, "error.device_id_required", nil)
		case errors.Is(err, service.ErrDevicePendingBusy):
			respondError(c, response.CodeConflict, "error.device_pending_busy", nil)
		default:
			respondError(c, response.CodeInternal, "error.pending_process_failed", err)
		}
		return
	}
	response.Success(c, summary)
}

// EnqueuePending 将设备的待导入处理投递到异步队列
func (h *Handler) EnqueuePending(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Param("device_id"))
	if deviceID == "" {
		respondError(c, response.CodeBadRequest, "error.device_id_required", nil)
		return
	}
	req, ok := h.bindPendingRequest(c)
	if !ok {
		return
	}
	payload := queue.DevicePendingImportPayload{
		DeviceID:  deviceID,
		ScriptKey: strings.TrimSpace(req.ScriptKey),
		Strict:    req.Strict != nil && *req.Strict,
		Latest:    req.Latest,
		Limit:     req.Limit,
	}
	taskID, err := h.QueueClient.EnqueueDevicePendingImport(payload, pendingEnqueueUnique)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueDisabled):
			respondError(c, response.CodeUnavailable, "error.queue_disabled", nil)
		default:
			respondError(c, response.CodeInternal, "error.queue_enqueue_failed", err)
		}
		return
	}
	response.Success(c, gin.H{
		"device_id": deviceID,
		"task_id":   taskID,
	})
}

// GetDeviceBindings 获取设备批次绑定快照
func (h *Handler) GetDeviceBindings(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Param("device_id"))
	if deviceID == "" {
		respondError(c, response.CodeBadRequest, "error.device_id_required", nil)
		return
	}
	response.Success(c, h.BindingTracker.Snapshot(deviceID))
}
