package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/allocation"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/models"

	"github.com/google/uuid"
)

// BatchInput 单个设备的导入批次
type BatchInput struct {
	DeviceID  string                 `json:"device_id"`
	Numbers   []models.ContactNumber `json:"-"`
	Range     *allocation.Range      `json:"range,omitempty"`
	Industry  *string                `json:"industry,omitempty"`
	ScriptKey string                 `json:"script_key,omitempty"`
}

// ConsumptionMark 一次消费标记请求。merged 策略下 ID 为运行号且 DeviceID 为空。
type ConsumptionMark struct {
	ID       string
	DeviceID string
	Ranges   []allocation.Range
}

// MarkConsumedFunc 消费标记回调，返回受影响号码数
type MarkConsumedFunc func(ctx context.Context, mark ConsumptionMark) (int64, error)

// ExecuteOptions 执行参数
type ExecuteOptions struct {
	MarkConsumed        MarkConsumedFunc
	Consumption         string // merged / per_range，设置 MarkConsumed 时必填
	PerDeviceMaxRetries int
	PerDeviceRetryDelay time.Duration
	InterDeviceDelay    time.Duration
	Strict              bool
	ScriptKey           string
}

// DeviceResult 单设备执行结果
type DeviceResult struct {
	DeviceID      string `json:"device_id"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
	TotalCount    int    `json:"total_count"`
	BatchID       string `json:"batch_id,omitempty"`
	SessionID     uint   `json:"session_id,omitempty"`
	Attempts      int    `json:"attempts"`
	Strategy      string `json:"strategy,omitempty"`
	Delta         *int   `json:"delta,omitempty"`
}

// ConsumptionResult 消费标记结果
type ConsumptionResult struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id,omitempty"`
	Affected int64  `json:"affected"`
	Error    string `json:"error,omitempty"`
}

// ExecutionResult 一次执行的汇总，SuccessDevices + FailedDevices == TotalDevices
type ExecutionResult struct {
	RunID          string              `json:"run_id"`
	TotalDevices   int                 `json:"total_devices"`
	TotalNumbers   int                 `json:"total_numbers"`
	SuccessDevices int                 `json:"success_devices"`
	FailedDevices  int                 `json:"failed_devices"`
	DeviceResults  []DeviceResult      `json:"device_results"`
	Consumption    []ConsumptionResult `json:"consumption,omitempty"`
}

// ImportExecutor 顺序驱动多设备导入
type ImportExecutor struct {
	packager *BatchPackager
	router   *ImportRouter
	verifier *Verifier
	ledger   SessionStore
	tracker  *BindingTracker
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewImportExecutor 创建执行器，ledger 与 tracker 可为空
func NewImportExecutor(packager *BatchPackager, router *ImportRouter, verifier *Verifier, ledger SessionStore, tracker *BindingTracker) *ImportExecutor {
	return &ImportExecutor{
		packager: packager,
		router:   router,
		verifier: verifier,
		ledger:   ledger,
		tracker:  tracker,
		sleep:    sleepContext,
	}
}

// Execute 严格顺序地处理每个批次。单设备失败不会中断后续设备。
// 仅当设置了 MarkConsumed 却未选择消费策略时返回错误。
func (e *ImportExecutor) Execute(ctx context.Context, batches []BatchInput, opts ExecuteOptions) (*ExecutionResult, error) {
	if err := validateConsumption(opts); err != nil {
		return nil, err
	}
	runID := newRunID()
	log := logger.SW("run_id", runID)

	result := &ExecutionResult{
		RunID:         runID,
		TotalDevices:  len(batches),
		DeviceResults: make([]DeviceResult, 0, len(batches)),
	}
	for i, batch := range batches {
		result.TotalNumbers += len(batch.Numbers)
		if ctx.Err() != nil {
			result.FailedDevices++
			result.DeviceResults = append(result.DeviceResults, DeviceResult{
				DeviceID:   batch.DeviceID,
				TotalCount: len(batch.Numbers),
				Message:    "canceled",
			})
			continue
		}
		if i > 0 && opts.InterDeviceDelay > 0 && len(batch.Numbers) > 0 {
			if err := e.sleep(ctx, opts.InterDeviceDelay); err != nil {
				log.Warnw("import_executor_delay_interrupted", "device_id", batch.DeviceID, "error", err)
			}
		}
		deviceResult := e.runDevice(ctx, batch, opts)
		if deviceResult.Success {
			result.SuccessDevices++
		} else {
			result.FailedDevices++
			log.Warnw("import_executor_device_failed",
				"device_id", deviceResult.DeviceID,
				"batch_id", deviceResult.BatchID,
				"attempts", deviceResult.Attempts,
				"message", deviceResult.Message,
			)
		}
		result.DeviceResults = append(result.DeviceResults, deviceResult)
	}

	if opts.MarkConsumed != nil {
		result.Consumption = e.markConsumed(ctx, runID, batches, result.DeviceResults, opts)
	}
	log.Infow("import_executor_finished",
		"total_devices", result.TotalDevices,
		"success_devices", result.SuccessDevices,
		"failed_devices", result.FailedDevices,
		"total_numbers", result.TotalNumbers,
	)
	return result, nil
}

// RetryFailed 仅重跑上次结果中失败的设备，并合并为新的汇总
func (e *ImportExecutor) RetryFailed(ctx context.Context, previous *ExecutionResult, batches []BatchInput, opts ExecuteOptions) (*ExecutionResult, error) {
	if previous == nil {
		return e.Execute(ctx, batches, opts)
	}
	failed := make(map[string]struct{})
	for _, item := range previous.DeviceResults {
		if !item.Success {
			failed[item.DeviceID] = struct{}{}
		}
	}
	retry := make([]BatchInput, 0, len(failed))
	for _, batch := range batches {
		if _, ok := failed[batch.DeviceID]; ok {
			retry = append(retry, batch)
		}
	}
	rerun, err := e.Execute(ctx, retry, opts)
	if err != nil {
		return nil, err
	}
	return mergeRetry(previous, rerun), nil
}

// mergeRetry 用重跑结果替换上次失败设备的结果，保持原有顺序
func mergeRetry(previous, rerun *ExecutionResult) *ExecutionResult {
	latest := make(map[string]DeviceResult, len(rerun.DeviceResults))
	for _, item := range rerun.DeviceResults {
		latest[item.DeviceID] = item
	}
	merged := &ExecutionResult{
		RunID:         rerun.RunID,
		TotalDevices:  len(previous.DeviceResults),
		TotalNumbers:  previous.TotalNumbers,
		DeviceResults: make([]DeviceResult, 0, len(previous.DeviceResults)),
		Consumption:   rerun.Consumption,
	}
	for _, item := range previous.DeviceResults {
		if replaced, ok := latest[item.DeviceID]; ok && !item.Success {
			item = replaced
		}
		if item.Success {
			merged.SuccessDevices++
		} else {
			merged.FailedDevices++
		}
		merged.DeviceResults = append(merged.DeviceResults, item)
	}
	return merged
}

// runDevice 执行单设备导入。导入结果确定前的 panic 转换为失败结果，
// 之后的记账 panic 只记录日志，不改变导入结果。
func (e *ImportExecutor) runDevice(ctx context.Context, batch BatchInput, opts ExecuteOptions) (result DeviceResult) {
	result = DeviceResult{
		DeviceID:   batch.DeviceID,
		TotalCount: len(batch.Numbers),
	}
	settled := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if settled {
			logger.Errorw("import_executor_bookkeeping_panicked", "device_id", batch.DeviceID, "batch_id", result.BatchID, "panic", r)
			return
		}
		result.Success = false
		result.Message = fmt.Sprintf("device import panicked: %v", r)
	}()

	if strings.TrimSpace(batch.DeviceID) == "" {
		result.Message = ErrDeviceIDRequired.Error()
		return result
	}
	if batch.Range != nil && !batch.Range.Valid() {
		result.Message = ErrNumberRangeInvalid.Error()
		return result
	}
	if len(batch.Numbers) == 0 {
		result.Success = true
		result.Message = "no numbers to import"
		return result
	}
	if e.packager == nil {
		result.Message = ErrArtifactMissing.Error()
		return result
	}

	registered, err := e.packager.Register(ctx, RegisterBatchInput{
		DeviceID: batch.DeviceID,
		Numbers:  batch.Numbers,
		Range:    batch.Range,
		Industry: batch.Industry,
	})
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.BatchID = registered.BatchID
	if e.tracker != nil {
		e.tracker.Bind(batch.DeviceID, registered.BatchID)
	}
	if e.ledger != nil {
		sessionID, err := e.ledger.CreateSession(ctx, registered.BatchID, batch.DeviceID)
		if err != nil {
			logger.Warnw("import_executor_session_create_failed", "device_id", batch.DeviceID, "batch_id", registered.BatchID, "error", err)
		}
		result.SessionID = sessionID
	}
	if strings.TrimSpace(registered.VcfFilePath) == "" {
		result.Message = ErrArtifactMissing.Error()
		e.finish(ctx, result.SessionID, ImportOutcome{Message: result.Message}, len(batch.Numbers))
		return result
	}

	artifact := Artifact{BatchID: registered.BatchID, Path: registered.VcfFilePath, TotalCount: registered.TotalCount}
	scriptKey := batch.ScriptKey
	if scriptKey == "" {
		scriptKey = opts.ScriptKey
	}

	var before *int
	if opts.Strict {
		before = e.verifier.Capture(ctx, batch.DeviceID)
	}
	outcome, attempts := e.importWithRetry(ctx, scriptKey, batch.DeviceID, artifact, opts)
	if opts.Strict {
		outcome = e.verifier.Reconcile(outcome, before, e.verifier.Capture(ctx, batch.DeviceID), true)
	}

	result.Attempts = attempts
	result.Success = outcome.Success
	result.Message = outcome.Message
	result.ImportedCount = outcome.ImportedCount
	result.Strategy = outcome.Strategy
	result.Delta = outcome.Delta
	if outcome.Success && result.ImportedCount == 0 {
		result.ImportedCount = len(batch.Numbers)
	}
	settled = true

	e.finish(ctx, result.SessionID, outcome, len(batch.Numbers))
	if outcome.Success && e.tracker != nil {
		e.tracker.MarkImported(batch.DeviceID, registered.BatchID)
	}
	return result
}

func (e *ImportExecutor) importWithRetry(ctx context.Context, scriptKey, deviceID string, artifact Artifact, opts ExecuteOptions) (ImportOutcome, int) {
	retries := opts.PerDeviceMaxRetries
	if retries < 0 {
		retries = 0
	}
	var outcome ImportOutcome
	attempts := 0
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && opts.PerDeviceRetryDelay > 0 {
			if err := e.sleep(ctx, opts.PerDeviceRetryDelay); err != nil {
				break
			}
		}
		attempts++
		var err error
		if e.router == nil {
			outcome, err = ImportOutcome{}, ErrCollaboratorMissing
		} else {
			outcome, err = e.router.Import(ctx, scriptKey, deviceID, artifact)
		}
		if err != nil {
			outcome.Success = false
			outcome.Message = err.Error()
		}
		if outcome.Success {
			break
		}
		logger.Debugw("import_executor_attempt_failed", "device_id", deviceID, "attempt", attempts, "message", outcome.Message)
	}
	return outcome, attempts
}

func (e *ImportExecutor) finish(ctx context.Context, sessionID uint, outcome ImportOutcome, total int) {
	if e.ledger == nil || sessionID == 0 {
		return
	}
	status := constants.SessionStatusFailed
	imported := outcome.ImportedCount
	failed := outcome.FailedCount
	if outcome.Success {
		status = constants.SessionStatusSuccess
		if imported == 0 {
			imported = total
		}
	} else if failed == 0 {
		failed = total - imported
	}
	if err := e.ledger.FinishSession(ctx, sessionID, status, imported, failed, outcome.Message); err != nil {
		logger.Warnw("import_executor_session_finish_failed", "session_id", sessionID, "status", status, "error", err)
	}
}

func (e *ImportExecutor) markConsumed(ctx context.Context, runID string, batches []BatchInput, results []DeviceResult, opts ExecuteOptions) []ConsumptionResult {
	marks := make([]ConsumptionMark, 0, len(batches))
	switch opts.Consumption {
	case constants.ConsumptionMerged:
		// 整次运行只标记一次，覆盖全部区间
		ranges := make([]allocation.Range, 0, len(batches))
		for _, batch := range batches {
			if batch.Range != nil && batch.Range.Valid() {
				ranges = append(ranges, *batch.Range)
			}
		}
		marks = append(marks, ConsumptionMark{ID: runID, Ranges: ranges})
	case constants.ConsumptionPerRange:
		for i, batch := range batches {
			if i >= len(results) || !results[i].Success || batch.Range == nil || !batch.Range.Valid() {
				continue
			}
			if len(batch.Numbers) == 0 {
				continue
			}
			marks = append(marks, ConsumptionMark{
				ID:       results[i].BatchID,
				DeviceID: batch.DeviceID,
				Ranges:   []allocation.Range{*batch.Range},
			})
		}
	}

	consumed := make([]ConsumptionResult, 0, len(marks))
	for _, mark := range marks {
		record := ConsumptionResult{ID: mark.ID, DeviceID: mark.DeviceID}
		affected, err := safeMarkConsumed(ctx, opts.MarkConsumed, mark)
		record.Affected = affected
		if err != nil {
			record.Error = err.Error()
			logger.Warnw("import_executor_mark_consumed_failed", "id", mark.ID, "device_id", mark.DeviceID, "error", err)
		}
		consumed = append(consumed, record)
	}
	return consumed
}

func safeMarkConsumed(ctx context.Context, fn MarkConsumedFunc, mark ConsumptionMark) (affected int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			affected = 0
			err = fmt.Errorf("mark consumed panicked: %v", r)
		}
	}()
	return fn(ctx, mark)
}

func validateConsumption(opts ExecuteOptions) error {
	if opts.MarkConsumed == nil {
		return nil
	}
	switch opts.Consumption {
	case "":
		return ErrConsumptionStrategyRequired
	case constants.ConsumptionMerged, constants.ConsumptionPerRange:
		return nil
	default:
		return ErrConsumptionStrategyInvalid
	}
}

func newRunID() string {
	return fmt.Sprintf("%s_%d_%s", constants.RunIDPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
