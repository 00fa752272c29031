package queue

import (
	"encoding/json"

	"github.com/contact-dispatch/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskDevicePendingImport 设备待导入会话处理任务
	TaskDevicePendingImport = constants.TaskDevicePendingImport
)

// DevicePendingImportPayload 设备待导入任务载荷
type DevicePendingImportPayload struct {
	DeviceID  string `json:"device_id"`
	ScriptKey string `json:"script_key,omitempty"`
	Strict    bool   `json:"strict,omitempty"`
	Latest    bool   `json:"latest,omitempty"` // 只处理最新一个会话
	Limit     int    `json:"limit,omitempty"`
}

// NewDevicePendingImportTask 创建设备待导入任务
func NewDevicePendingImportTask(payload DevicePendingImportPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDevicePendingImport, body), nil
}
