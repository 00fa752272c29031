package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/provider"
	"github.com/contact-dispatch/internal/queue"
	"github.com/contact-dispatch/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskDevicePendingImport, c.handleDevicePendingImport)
}

func (c *Consumer) handleDevicePendingImport(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_device_pending_import_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.DevicePendingImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_device_pending_import_unmarshal_failed", "error", err)
		return err
	}
	deviceID := strings.TrimSpace(payload.DeviceID)
	if deviceID == "" {
		logger.Debugw("worker_device_pending_import_skip_invalid_payload")
		return nil
	}
	if c.Container == nil || c.SessionImportService == nil {
		logger.Warnw("worker_device_pending_import_skip_service_nil", "device_id", deviceID)
		return nil
	}

	opts := c.PendingOptions()
	if strings.TrimSpace(payload.ScriptKey) != "" {
		opts.ScriptKey = payload.ScriptKey
	}
	if payload.Strict {
		opts.Strict = true
	}
	if payload.Limit > 0 {
		opts.Limit = payload.Limit
	}

	var (
		summary *service.PendingSummary
		err     error
	)
	if payload.Latest {
		summary, err = c.SessionImportService.ProcessLatestPendingSessionForDevice(ctx, deviceID, opts)
	} else {
		summary, err = c.SessionImportService.ProcessPendingSessionsForDevice(ctx, deviceID, opts)
	}
	if err != nil {
		if errors.Is(err, service.ErrDeviceIDRequired) {
			return nil
		}
		logger.Warnw("worker_device_pending_import_failed", "device_id", deviceID, "error", err)
		return err
	}
	logger.Infow("worker_device_pending_import_done",
		"device_id", deviceID,
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
	)
	return nil
}
