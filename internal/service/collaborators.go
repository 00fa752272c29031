package service

import (
	"context"
	"fmt"
)

// Artifact 设备可导入的批次文件
type Artifact struct {
	BatchID    string
	Path       string
	TotalCount int
}

// ImportOutcome 设备导入结果，Strategy 记录实际执行的导入脚本
type ImportOutcome struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
	FailedCount   int    `json:"failed_count"`
	Strategy      string `json:"strategy,omitempty"`
	Delta         *int   `json:"delta,omitempty"`
}

// ImportCollaborator 向设备导入批次文件的外部能力
type ImportCollaborator interface {
	ImportToDevice(ctx context.Context, deviceID string, artifact Artifact) (ImportOutcome, error)
}

// ImportCollaboratorFunc 函数适配器
type ImportCollaboratorFunc func(ctx context.Context, deviceID string, artifact Artifact) (ImportOutcome, error)

// ImportToDevice 调用函数本身
func (f ImportCollaboratorFunc) ImportToDevice(ctx context.Context, deviceID string, artifact Artifact) (ImportOutcome, error) {
	return f(ctx, deviceID, artifact)
}

// DeviceMetrics 读取设备联系人数量的外部能力
type DeviceMetrics interface {
	ContactCount(ctx context.Context, deviceID string) (int, error)
}

// DeviceMetricsFunc 函数适配器
type DeviceMetricsFunc func(ctx context.Context, deviceID string) (int, error)

// ContactCount 调用函数本身
func (f DeviceMetricsFunc) ContactCount(ctx context.Context, deviceID string) (int, error) {
	return f(ctx, deviceID)
}

// callCollaborator 调用外部导入能力，panic 转换为错误
func callCollaborator(ctx context.Context, collaborator ImportCollaborator, deviceID string, artifact Artifact) (outcome ImportOutcome, err error) {
	if collaborator == nil {
		return ImportOutcome{}, ErrCollaboratorMissing
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = ImportOutcome{}
			err = fmt.Errorf("%w: %v", ErrCollaboratorPanicked, r)
		}
	}()
	return collaborator.ImportToDevice(ctx, deviceID, artifact)
}
