package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/repository"

	"gorm.io/gorm"
)

const defaultRevertReason = "manual revert"

// SessionLedger 导入会话账本
type SessionLedger struct {
	sessionRepo repository.ImportSessionRepository
	batchRepo   repository.VcfBatchRepository
	numberRepo  repository.ContactNumberRepository
}

// NewSessionLedger 创建会话账本
func NewSessionLedger(sessionRepo repository.ImportSessionRepository, batchRepo repository.VcfBatchRepository, numberRepo repository.ContactNumberRepository) *SessionLedger {
	return &SessionLedger{
		sessionRepo: sessionRepo,
		batchRepo:   batchRepo,
		numberRepo:  numberRepo,
	}
}

// CreateSession 创建 pending 会话，行业标签继承自批次
func (l *SessionLedger) CreateSession(ctx context.Context, batchID, deviceID string) (uint, error) {
	batchID = strings.TrimSpace(batchID)
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, ErrDeviceIDRequired
	}
	session := &models.ImportSession{
		BatchID:   batchID,
		DeviceID:  deviceID,
		Status:    constants.SessionStatusPending,
		StartedAt: time.Now(),
	}
	if batch, err := l.batchRepo.GetByBatchID(batchID); err == nil && batch != nil {
		session.Industry = batch.Industry
	}
	if err := l.sessionRepo.Create(session); err != nil {
		logger.Errorw("session_ledger_create_failed", "batch_id", batchID, "device_id", deviceID, "error", err)
		return 0, ErrSessionCreateFailed
	}
	return session.ID, nil
}

// FinishSession 写入终态。
// 同状态重复写入为空操作；终态之间的切换（含 failed→success）被拒绝，success→failed 只能通过 RevertSession。
func (l *SessionLedger) FinishSession(ctx context.Context, id uint, status string, importedCount, failedCount int, errMsg string) error {
	if status != constants.SessionStatusSuccess && status != constants.SessionStatusFailed {
		return ErrSessionTransitionInvalid
	}
	session, err := l.sessionRepo.GetByID(id)
	if err != nil {
		return ErrSessionUpdateFailed
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.Status == status {
		return nil
	}
	if session.Status != constants.SessionStatusPending {
		return ErrSessionTransitionInvalid
	}

	affected, err := l.sessionRepo.Finish(id, []string{constants.SessionStatusPending}, repository.SessionFinishFields{
		Status:        status,
		ImportedCount: importedCount,
		FailedCount:   failedCount,
		ErrorMessage:  normalizeOptional(errMsg),
		FinishedAt:    time.Now(),
	})
	if err != nil {
		logger.Errorw("session_ledger_finish_failed", "session_id", id, "status", status, "error", err)
		return ErrSessionUpdateFailed
	}
	if affected == 0 {
		// 并发终结，复核当前状态
		current, err := l.sessionRepo.GetByID(id)
		if err != nil || current == nil {
			return ErrSessionUpdateFailed
		}
		if current.Status != status {
			return ErrSessionTransitionInvalid
		}
	}
	return nil
}

// RevertSession 将成功会话撤回为失败，并在同一事务内把批次成员恢复为未导入，返回恢复数量
func (l *SessionLedger) RevertSession(ctx context.Context, id uint, reason string) (int, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRevertReason
	}

	var restored int64
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessionRepo := l.sessionRepo.WithTx(tx)
		session, err := sessionRepo.GetByID(id)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if session.Status != constants.SessionStatusSuccess {
			return ErrSessionTransitionInvalid
		}
		affected, err := sessionRepo.Finish(id, []string{constants.SessionStatusSuccess}, repository.SessionFinishFields{
			Status:        constants.SessionStatusFailed,
			ImportedCount: session.ImportedCount,
			FailedCount:   session.FailedCount,
			ErrorMessage:  &reason,
			FinishedAt:    time.Now(),
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSessionTransitionInvalid
		}
		ids, err := l.batchRepo.WithTx(tx).ListMemberIDs(session.BatchID)
		if err != nil {
			return err
		}
		restored, err = l.numberRepo.WithTx(tx).ResetToUnimported(ids)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionTransitionInvalid) {
			return 0, err
		}
		logger.Errorw("session_ledger_revert_failed", "session_id", id, "error", err)
		return 0, ErrSessionRevertFailed
	}
	logger.Infow("session_ledger_reverted", "session_id", id, "restored", restored, "reason", reason)
	return int(restored), nil
}

// UpdateIndustry 更新会话行业标签，空值表示清除
func (l *SessionLedger) UpdateIndustry(ctx context.Context, id uint, industry string) error {
	affected, err := l.sessionRepo.UpdateIndustry(id, normalizeOptional(industry))
	if err != nil {
		return ErrSessionUpdateFailed
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession 获取会话
func (l *SessionLedger) GetSession(ctx context.Context, id uint) (*models.ImportSession, error) {
	session, err := l.sessionRepo.GetByID(id)
	if err != nil {
		return nil, ErrSessionUpdateFailed
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions 分页查询会话
func (l *SessionLedger) ListSessions(ctx context.Context, filter repository.ImportSessionListFilter) ([]models.ImportSession, int64, error) {
	return l.sessionRepo.List(filter)
}

// ListPending 获取设备待处理会话
func (l *SessionLedger) ListPending(ctx context.Context, deviceID string, limit int, newestFirst bool) ([]models.ImportSession, error) {
	return l.sessionRepo.ListPendingByDevice(deviceID, limit, newestFirst)
}
