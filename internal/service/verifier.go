package service

import (
	"context"
	"fmt"

	"github.com/contact-dispatch/internal/logger"
)

// Verifier 通过设备联系人数量的前后差值核对导入结果
type Verifier struct {
	metrics DeviceMetrics
}

// NewVerifier 创建核对器，metrics 可为空
func NewVerifier(metrics DeviceMetrics) *Verifier {
	return &Verifier{metrics: metrics}
}

// Capture 读取设备联系人数量，读取失败返回 nil
func (v *Verifier) Capture(ctx context.Context, deviceID string) *int {
	if v == nil || v.metrics == nil {
		return nil
	}
	count, err := v.metrics.ContactCount(ctx, deviceID)
	if err != nil {
		logger.Warnw("verifier_capture_failed", "device_id", deviceID, "error", err)
		return nil
	}
	return &count
}

// Reconcile 严格模式下，报告成功但 delta <= 0 的结果降级为失败；宽松模式信任导入方。
// 任一快照缺失时保持原结果。
func (v *Verifier) Reconcile(outcome ImportOutcome, before, after *int, strict bool) ImportOutcome {
	if before == nil || after == nil {
		return outcome
	}
	delta := *after - *before
	outcome.Delta = &delta
	if !strict || !outcome.Success || delta > 0 {
		return outcome
	}
	outcome.Success = false
	diagnostic := fmt.Sprintf("verification failed (delta=%d)", delta)
	if outcome.Message != "" {
		outcome.Message = outcome.Message + "; " + diagnostic
	} else {
		outcome.Message = diagnostic
	}
	return outcome
}
