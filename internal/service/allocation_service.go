package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/allocation"
	"github.com/contact-dispatch/internal/cache"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
)

// Assignment 设备号码区间分配
type Assignment struct {
	DeviceID  string  `json:"device_id"`
	Start     *int64  `json:"start"`
	End       *int64  `json:"end"`
	Industry  *string `json:"industry,omitempty"`
	ScriptKey string  `json:"script_key,omitempty"`
}

// AllocateInput 为设备分配号码参数
type AllocateInput struct {
	DeviceID      string
	Count         int
	Industry      string
	SkipIfPending bool
}

// AllocateResult 分配结果
type AllocateResult struct {
	DeviceID  string           `json:"device_id"`
	Skipped   bool             `json:"skipped"`
	Token     string           `json:"token,omitempty"`
	Range     allocation.Range `json:"range"`
	Count     int              `json:"count"`
	BatchID   string           `json:"batch_id,omitempty"`
	SessionID uint             `json:"session_id,omitempty"`
}

// ConflictError 区间冲突错误，携带冲突明细
type ConflictError struct {
	Conflicts []allocation.Conflict
}

func (e *ConflictError) Error() string {
	return ErrAllocationConflict.Error()
}

// Unwrap 支持 errors.Is(err, ErrAllocationConflict)
func (e *ConflictError) Unwrap() error {
	return ErrAllocationConflict
}

// AllocationService 号码分配与执行编排
type AllocationService struct {
	pool     *NumberPoolService
	packager *BatchPackager
	ledger   *SessionLedger
	tracker  *BindingTracker
	executor *ImportExecutor
	lockTTL  time.Duration
}

// NewAllocationService 创建分配服务
func NewAllocationService(pool *NumberPoolService, packager *BatchPackager, ledger *SessionLedger, tracker *BindingTracker, executor *ImportExecutor, lockTTL time.Duration) *AllocationService {
	return &AllocationService{
		pool:     pool,
		packager: packager,
		ledger:   ledger,
		tracker:  tracker,
		executor: executor,
		lockTTL:  lockTTL,
	}
}

// CheckConflicts 检测分配之间的区间重叠，不完整的区间被忽略
func (s *AllocationService) CheckConflicts(assignments []Assignment) []allocation.Conflict {
	bounds := make(map[string]allocation.Bounds, len(assignments))
	for _, item := range assignments {
		bounds[item.DeviceID] = allocation.Bounds{Start: item.Start, End: item.End}
	}
	return allocation.FindConflicts(bounds)
}

// NextRange 计算紧随已有区间之后的下一个空闲区间
func (s *AllocationService) NextRange(existing []allocation.Range, count int64) (allocation.Range, error) {
	if count <= 0 {
		return allocation.Range{}, ErrAllocationCountZero
	}
	return allocation.NextFreeRange(existing, count), nil
}

// BulkAssign 为多台设备依次分配连续且不重叠的区间
func (s *AllocationService) BulkAssign(deviceIDs []string, existing []allocation.Range, count int64) ([]allocation.DeviceRange, error) {
	if count <= 0 {
		return nil, ErrAllocationCountZero
	}
	return allocation.BulkAssign(deviceIDs, existing, count), nil
}

// AllocateToDevice 占用 N 个可用号码、生成批次并创建待导入会话
func (s *AllocationService) AllocateToDevice(ctx context.Context, input AllocateInput) (*AllocateResult, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if input.Count <= 0 {
		return nil, ErrAllocationCountZero
	}
	result := &AllocateResult{DeviceID: deviceID}
	if input.SkipIfPending && s.tracker != nil && s.tracker.HasPending(deviceID) {
		result.Skipped = true
		return result, nil
	}

	release, ok, err := cache.TryLock(ctx, constants.LockKeyAllocation, s.lockTTL)
	if err != nil {
		logger.Warnw("allocation_lock_failed", "device_id", deviceID, "error", err)
		return nil, ErrAllocationBusy
	}
	if !ok {
		return nil, ErrAllocationBusy
	}
	defer release()

	reservation, err := s.pool.ReserveNext(ctx, deviceID, input.Count, input.Industry)
	if err != nil {
		return nil, err
	}
	r := reservation.Range
	batch, err := s.packager.Register(ctx, RegisterBatchInput{
		DeviceID: deviceID,
		Numbers:  reservation.Numbers,
		Range:    &r,
		Industry: normalizeOptional(input.Industry),
	})
	if err != nil {
		s.releaseQuietly(ctx, reservation.Token)
		return nil, err
	}
	if err := s.pool.AttachBatch(ctx, reservation.Token, batch.BatchID); err != nil {
		s.releaseQuietly(ctx, reservation.Token)
		return nil, err
	}
	sessionID, err := s.ledger.CreateSession(ctx, batch.BatchID, deviceID)
	if err != nil {
		s.releaseQuietly(ctx, reservation.Token)
		return nil, err
	}
	if s.tracker != nil {
		s.tracker.Bind(deviceID, batch.BatchID)
	}

	result.Token = reservation.Token
	result.Range = reservation.Range
	result.Count = len(reservation.Numbers)
	result.BatchID = batch.BatchID
	result.SessionID = sessionID
	logger.Infow("allocation_device_allocated",
		"device_id", deviceID,
		"batch_id", batch.BatchID,
		"session_id", sessionID,
		"count", result.Count,
	)
	return result, nil
}

// ExecuteAssignments 检查冲突、占用各设备区间后顺序执行导入，结束后释放未消费的占用
func (s *AllocationService) ExecuteAssignments(ctx context.Context, assignments []Assignment, opts ExecuteOptions) (*ExecutionResult, error) {
	if conflicts := s.CheckConflicts(assignments); len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}
	if opts.MarkConsumed == nil {
		opts.MarkConsumed = s.markConsumed
	}
	if err := validateConsumption(opts); err != nil {
		return nil, err
	}

	batches := make([]BatchInput, 0, len(assignments))
	tokens := make([]string, 0, len(assignments))
	defer func() {
		for _, token := range tokens {
			s.releaseQuietly(context.WithoutCancel(ctx), token)
		}
	}()
	for _, item := range assignments {
		batch := BatchInput{
			DeviceID:  strings.TrimSpace(item.DeviceID),
			Industry:  item.Industry,
			ScriptKey: item.ScriptKey,
		}
		r, ok := allocation.Bounds{Start: item.Start, End: item.End}.Resolve()
		if ok {
			reservation, err := s.pool.ReserveRange(ctx, batch.DeviceID, r, true)
			if err != nil {
				return nil, err
			}
			if reservation.Token != "" {
				tokens = append(tokens, reservation.Token)
			}
			batch.Range = &r
			batch.Numbers = reservation.Numbers
		}
		batches = append(batches, batch)
	}

	return s.executor.Execute(ctx, batches, opts)
}

// RetryFailed 重跑上次执行中失败的设备
func (s *AllocationService) RetryFailed(ctx context.Context, previous *ExecutionResult, assignments []Assignment, opts ExecuteOptions) (*ExecutionResult, error) {
	if previous == nil {
		return s.ExecuteAssignments(ctx, assignments, opts)
	}
	failed := make(map[string]struct{})
	for _, item := range previous.DeviceResults {
		if !item.Success {
			failed[item.DeviceID] = struct{}{}
		}
	}
	retry := make([]Assignment, 0, len(failed))
	for _, item := range assignments {
		if _, ok := failed[item.DeviceID]; ok {
			retry = append(retry, item)
		}
	}
	rerun, err := s.ExecuteAssignments(ctx, retry, opts)
	if err != nil {
		return nil, err
	}
	return mergeRetry(previous, rerun), nil
}

func (s *AllocationService) markConsumed(ctx context.Context, mark ConsumptionMark) (int64, error) {
	var total int64
	var errs []error
	for _, r := range mark.Ranges {
		affected, err := s.pool.MarkUsedByRange(ctx, r, mark.ID, mark.DeviceID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += affected
	}
	return total, errors.Join(errs...)
}

func (s *AllocationService) releaseQuietly(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if _, err := s.pool.ReleaseReservation(ctx, token); err != nil && !errors.Is(err, ErrReservationNotActive) {
		logger.Warnw("allocation_release_failed", "token", token, "error", err)
	}
}
