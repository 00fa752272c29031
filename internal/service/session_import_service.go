package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/contact-dispatch/internal/cache"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/models"

	"golang.org/x/sync/singleflight"
)

// SessionStore 会话账本的最小依赖
type SessionStore interface {
	CreateSession(ctx context.Context, batchID, deviceID string) (uint, error)
	FinishSession(ctx context.Context, id uint, status string, importedCount, failedCount int, errMsg string) error
}

// BatchLookup 批次查询依赖
type BatchLookup interface {
	GetByBatchID(batchID string) (*models.VcfBatch, error)
}

// ScriptImporter 按脚本键导入，ImportRouter 实现该接口
type ScriptImporter interface {
	Import(ctx context.Context, scriptKey, deviceID string, artifact Artifact) (ImportOutcome, error)
}

// PendingOptions 处理待导入会话参数
type PendingOptions struct {
	ScriptKey string
	Limit     int
	Strict    bool
}

// SessionDetail 单个会话处理结果
type SessionDetail struct {
	SessionID uint   `json:"session_id"`
	BatchID   string `json:"batch_id"`
	DeviceID  string `json:"device_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	Delta     *int   `json:"delta,omitempty"`
}

// PendingSummary 待导入会话处理汇总
type PendingSummary struct {
	DeviceID string          `json:"device_id"`
	Total    int             `json:"total"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Details  []SessionDetail `json:"details"`
}

// ReimportRow 重新导入的会话行
type ReimportRow struct {
	SessionID uint   `json:"session_id"`
	BatchID   string `json:"batch_id"`
	DeviceID  string `json:"device_id"`
}

// ReimportDeps 重新导入依赖，全部可注入
type ReimportDeps struct {
	Ledger    SessionStore
	Importer  ScriptImporter
	Batches   BatchLookup
	Verifier  *Verifier
	Strict    bool
	ScriptKey string
	OnSuccess func(ctx context.Context, batchID, deviceID string)
}

// ReimportSummary 重新导入汇总
type ReimportSummary struct {
	Total                int             `json:"total"`
	Success              int             `json:"success"`
	Failed               int             `json:"failed"`
	LastCreatedSessionID uint            `json:"last_created_session_id"`
	Details              []SessionDetail `json:"details"`
}

// SessionImportService 处理设备上的待导入会话
type SessionImportService struct {
	ledger       *SessionLedger
	batches      BatchLookup
	router       *ImportRouter
	verifier     *Verifier
	pool         *NumberPoolService
	tracker      *BindingTracker
	pendingLimit int
	lockTTL      time.Duration
	group        singleflight.Group
	deviceLocks  sync.Map
}

const defaultPendingLockTTL = 10 * time.Minute

// NewSessionImportService 创建会话导入服务
func NewSessionImportService(ledger *SessionLedger, batches BatchLookup, router *ImportRouter, verifier *Verifier, pool *NumberPoolService, tracker *BindingTracker, pendingLimit int) *SessionImportService {
	if pendingLimit <= 0 {
		pendingLimit = 1000
	}
	return &SessionImportService{
		ledger:       ledger,
		batches:      batches,
		router:       router,
		verifier:     verifier,
		pool:         pool,
		tracker:      tracker,
		pendingLimit: pendingLimit,
		lockTTL:      defaultPendingLockTTL,
	}
}

// ProcessPendingSessionsForDevice 按 ID 升序处理设备的全部待导入会话，单个失败不影响后续。
// 同一设备的并发调用合并为一次执行。
func (s *SessionImportService) ProcessPendingSessionsForDevice(ctx context.Context, deviceID string, opts PendingOptions) (*PendingSummary, error) {
	return s.processPending(ctx, deviceID, opts, false)
}

// ProcessLatestPendingSessionForDevice 只处理设备最新的一个待导入会话
func (s *SessionImportService) ProcessLatestPendingSessionForDevice(ctx context.Context, deviceID string, opts PendingOptions) (*PendingSummary, error) {
	opts.Limit = 1
	return s.processPending(ctx, deviceID, opts, true)
}

// processPending 合并同一设备同一模式的并发调用。
// 共享执行脱离调用方的取消信号，每个调用方只在自己的 ctx 上等待结果。
func (s *SessionImportService) processPending(ctx context.Context, deviceID string, opts PendingOptions, latest bool) (*PendingSummary, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	key := deviceID
	if latest {
		key = deviceID + ":latest"
	}
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.runPending(runCtx, deviceID, opts, latest)
	})
	select {
	case <-ctx.Done():
		logger.Warnw("session_import_pending_wait_canceled", "device_id", deviceID, "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Debugw("session_import_pending_shared", "device_id", deviceID)
		}
		return res.Val.(*PendingSummary), nil
	}
}

// lockDevice 串行化同一设备的全部处理模式；启用 Redis 时同时持有跨进程锁
func (s *SessionImportService) lockDevice(ctx context.Context, deviceID string) (func(), error) {
	value, _ := s.deviceLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	release, ok, err := cache.TryLock(ctx, constants.LockKeyDevicePending+":"+deviceID, s.lockTTL)
	if err != nil || !ok {
		mu.Unlock()
		if err != nil {
			logger.Warnw("session_import_device_lock_failed", "device_id", deviceID, "error", err)
		}
		return nil, ErrDevicePendingBusy
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}

func (s *SessionImportService) runPending(ctx context.Context, deviceID string, opts PendingOptions, latest bool) (*PendingSummary, error) {
	unlock, err := s.lockDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	limit := opts.Limit
	if limit <= 0 || limit > s.pendingLimit {
		limit = s.pendingLimit
	}
	sessions, err := s.ledger.ListPending(ctx, deviceID, limit, latest)
	if err != nil {
		return nil, err
	}

	summary := &PendingSummary{
		DeviceID: deviceID,
		Details:  make([]SessionDetail, 0, len(sessions)),
	}
	for i := range sessions {
		if !s.stillPending(ctx, sessions[i].ID) {
			logger.Infow("session_import_pending_skipped", "device_id", deviceID, "session_id", sessions[i].ID)
			continue
		}
		detail := s.processSession(ctx, &sessions[i], opts)
		summary.Total++
		if detail.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
		summary.Details = append(summary.Details, detail)
	}
	logger.Infow("session_import_pending_finished",
		"device_id", deviceID,
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
	)
	return summary, nil
}

// stillPending 派发前复核会话状态，已被其他调用终结的会话跳过
func (s *SessionImportService) stillPending(ctx context.Context, id uint) bool {
	current, err := s.ledger.GetSession(ctx, id)
	if err != nil {
		return false
	}
	return current.Status == constants.SessionStatusPending
}

func (s *SessionImportService) processSession(ctx context.Context, session *models.ImportSession, opts PendingOptions) SessionDetail {
	detail := SessionDetail{
		SessionID: session.ID,
		BatchID:   session.BatchID,
		DeviceID:  session.DeviceID,
	}

	artifact, ok := resolveArtifact(s.batches, session.BatchID)
	if !ok {
		detail.Message = ErrArtifactMissing.Error()
		s.finishFailed(ctx, session, detail.Message, 0)
		return detail
	}
	if s.tracker != nil {
		s.tracker.Bind(session.DeviceID, session.BatchID)
	}

	var before *int
	if opts.Strict {
		before = s.verifier.Capture(ctx, session.DeviceID)
	}
	outcome, err := s.router.Import(ctx, opts.ScriptKey, session.DeviceID, artifact)
	if err != nil {
		outcome.Success = false
		outcome.Message = err.Error()
	}
	if opts.Strict {
		outcome = s.verifier.Reconcile(outcome, before, s.verifier.Capture(ctx, session.DeviceID), true)
	}
	detail.Success = outcome.Success
	detail.Message = outcome.Message
	detail.Strategy = outcome.Strategy
	detail.Delta = outcome.Delta

	if !outcome.Success {
		s.finishFailed(ctx, session, outcome.Message, artifact.TotalCount)
		if s.pool != nil {
			if _, err := s.pool.ReleaseBatch(ctx, session.BatchID); err != nil {
				logger.Warnw("session_import_release_failed", "batch_id", session.BatchID, "error", err)
			}
		}
		return detail
	}

	imported := outcome.ImportedCount
	if imported == 0 {
		imported = artifact.TotalCount
	}
	if err := s.ledger.FinishSession(ctx, session.ID, constants.SessionStatusSuccess, imported, outcome.FailedCount, outcome.Message); err != nil {
		logger.Warnw("session_import_finish_failed", "session_id", session.ID, "error", err)
	}
	if s.tracker != nil {
		s.tracker.MarkImported(session.DeviceID, session.BatchID)
	}
	if s.pool != nil {
		if _, err := s.pool.CommitBatch(ctx, session.BatchID, session.DeviceID); err != nil {
			logger.Warnw("session_import_commit_failed", "batch_id", session.BatchID, "error", err)
		}
	}
	return detail
}

func (s *SessionImportService) finishFailed(ctx context.Context, session *models.ImportSession, message string, total int) {
	if err := s.ledger.FinishSession(ctx, session.ID, constants.SessionStatusFailed, 0, total, message); err != nil {
		logger.Warnw("session_import_finish_failed", "session_id", session.ID, "error", err)
	}
}

// ReimportSelectedSessions 使用服务自身依赖重新导入选中的会话
func (s *SessionImportService) ReimportSelectedSessions(ctx context.Context, rows []ReimportRow, opts PendingOptions) (*ReimportSummary, error) {
	deps := ReimportDeps{
		Ledger:    s.ledger,
		Importer:  s.router,
		Batches:   s.batches,
		Verifier:  s.verifier,
		Strict:    opts.Strict,
		ScriptKey: opts.ScriptKey,
		OnSuccess: func(ctx context.Context, batchID, deviceID string) {
			if s.tracker != nil {
				s.tracker.MarkImported(deviceID, batchID)
			}
			if s.pool != nil {
				if _, err := s.pool.CommitBatch(ctx, batchID, deviceID); err != nil {
					logger.Warnw("session_reimport_commit_failed", "batch_id", batchID, "error", err)
				}
			}
		},
	}
	return ReimportSelectedSessionsWithDeps(ctx, rows, deps)
}

// ReimportSelectedSessionsWithDeps 逐行执行 创建会话 → 导入 → 终结会话。
// 终结失败只记录日志，该行按导入结果计数。
func ReimportSelectedSessionsWithDeps(ctx context.Context, rows []ReimportRow, deps ReimportDeps) (*ReimportSummary, error) {
	if deps.Ledger == nil || deps.Importer == nil || deps.Batches == nil {
		return nil, ErrCollaboratorMissing
	}
	summary := &ReimportSummary{
		Total:   len(rows),
		Details: make([]SessionDetail, 0, len(rows)),
	}
	for _, row := range rows {
		detail := reimportRow(ctx, row, deps, summary)
		if detail.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
		summary.Details = append(summary.Details, detail)
	}
	return summary, nil
}

func reimportRow(ctx context.Context, row ReimportRow, deps ReimportDeps, summary *ReimportSummary) SessionDetail {
	detail := SessionDetail{BatchID: row.BatchID, DeviceID: row.DeviceID}

	// 会话创建失败不阻止导入，仅缺少账本记录
	sessionID, err := deps.Ledger.CreateSession(ctx, row.BatchID, row.DeviceID)
	if err != nil {
		logger.Warnw("session_reimport_create_failed", "batch_id", row.BatchID, "device_id", row.DeviceID, "error", err)
		sessionID = 0
	} else {
		detail.SessionID = sessionID
		summary.LastCreatedSessionID = sessionID
	}

	artifact, ok := resolveArtifact(deps.Batches, row.BatchID)
	var outcome ImportOutcome
	if !ok {
		outcome = ImportOutcome{Message: ErrArtifactMissing.Error()}
	} else {
		var before *int
		if deps.Strict {
			before = deps.Verifier.Capture(ctx, row.DeviceID)
		}
		outcome, err = deps.Importer.Import(ctx, deps.ScriptKey, row.DeviceID, artifact)
		if err != nil {
			outcome.Success = false
			outcome.Message = err.Error()
		}
		if deps.Strict {
			outcome = deps.Verifier.Reconcile(outcome, before, deps.Verifier.Capture(ctx, row.DeviceID), true)
		}
	}
	detail.Success = outcome.Success
	detail.Message = outcome.Message
	detail.Strategy = outcome.Strategy
	detail.Delta = outcome.Delta

	status := constants.SessionStatusFailed
	imported, failed := outcome.ImportedCount, outcome.FailedCount
	if outcome.Success {
		status = constants.SessionStatusSuccess
		if imported == 0 {
			imported = artifact.TotalCount
		}
	} else if failed == 0 {
		failed = artifact.TotalCount
	}
	if sessionID != 0 {
		if err := finishSafely(ctx, deps.Ledger, sessionID, status, imported, failed, outcome.Message); err != nil {
			logger.Warnw("session_reimport_finish_failed", "session_id", sessionID, "status", status, "error", err)
		}
	}
	if outcome.Success && deps.OnSuccess != nil {
		deps.OnSuccess(ctx, row.BatchID, row.DeviceID)
	}
	return detail
}

func finishSafely(ctx context.Context, ledger SessionStore, id uint, status string, imported, failed int, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("finish session panicked")
		}
	}()
	return ledger.FinishSession(ctx, id, status, imported, failed, message)
}

// resolveArtifact 查询批次文件，批次缺失、路径为空或文件不存在时返回 false
func resolveArtifact(batches BatchLookup, batchID string) (Artifact, bool) {
	if batches == nil {
		return Artifact{}, false
	}
	batch, err := batches.GetByBatchID(batchID)
	if err != nil || batch == nil {
		return Artifact{}, false
	}
	path := strings.TrimSpace(batch.VcfFilePath)
	if path == "" {
		return Artifact{}, false
	}
	if _, err := os.Stat(path); err != nil {
		return Artifact{}, false
	}
	return Artifact{BatchID: batch.BatchID, Path: path, TotalCount: batch.TotalCount}, true
}
