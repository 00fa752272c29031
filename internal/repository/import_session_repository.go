package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/models"

	"gorm.io/gorm"
)

// ImportSessionRepository 导入会话数据访问接口
type ImportSessionRepository interface {
	Create(session *models.ImportSession) error
	GetByID(id uint) (*models.ImportSession, error)
	List(filter ImportSessionListFilter) ([]models.ImportSession, int64, error)
	ListPendingByDevice(deviceID string, limit int, newestFirst bool) ([]models.ImportSession, error)
	Finish(id uint, fromStatuses []string, fields SessionFinishFields) (int64, error)
	UpdateIndustry(id uint, industry *string) (int64, error)
	WithTx(tx *gorm.DB) *GormImportSessionRepository
}

// SessionFinishFields 会话终态写入字段
type SessionFinishFields struct {
	Status        string
	ImportedCount int
	FailedCount   int
	ErrorMessage  *string
	FinishedAt    time.Time
}

// GormImportSessionRepository GORM 实现
type GormImportSessionRepository struct {
	db *gorm.DB
}

// NewImportSessionRepository 创建会话仓库
func NewImportSessionRepository(db *gorm.DB) *GormImportSessionRepository {
	return &GormImportSessionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormImportSessionRepository) WithTx(tx *gorm.DB) *GormImportSessionRepository {
	if tx == nil {
		return r
	}
	return &GormImportSessionRepository{db: tx}
}

// Create 创建会话
func (r *GormImportSessionRepository) Create(session *models.ImportSession) error {
	return r.db.Create(session).Error
}

// GetByID 根据 ID 获取会话
func (r *GormImportSessionRepository) GetByID(id uint) (*models.ImportSession, error) {
	var session models.ImportSession
	if err := r.db.First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// List 分页查询会话
func (r *GormImportSessionRepository) List(filter ImportSessionListFilter) ([]models.ImportSession, int64, error) {
	query := r.db.Model(&models.ImportSession{})
	if deviceID := strings.TrimSpace(filter.DeviceID); deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	if batchID := strings.TrimSpace(filter.BatchID); batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if industry := strings.TrimSpace(filter.Industry); industry != "" {
		query = query.Where("industry = ?", industry)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.ImportSession
	if err := query.Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListPendingByDevice 获取设备的待处理会话，默认按 ID 升序
func (r *GormImportSessionRepository) ListPendingByDevice(deviceID string, limit int, newestFirst bool) ([]models.ImportSession, error) {
	query := r.db.Model(&models.ImportSession{}).
		Where("device_id = ? AND status = ?", deviceID, constants.SessionStatusPending)
	if newestFirst {
		query = query.Order("id desc")
	} else {
		query = query.Order("id asc")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []models.ImportSession
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Finish 条件写入终态，仅当当前状态属于 fromStatuses 时生效
func (r *GormImportSessionRepository) Finish(id uint, fromStatuses []string, fields SessionFinishFields) (int64, error) {
	if id == 0 || len(fromStatuses) == 0 {
		return 0, nil
	}
	if fields.FinishedAt.IsZero() {
		fields.FinishedAt = time.Now()
	}
	result := r.db.Model(&models.ImportSession{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{
			"status":         fields.Status,
			"imported_count": fields.ImportedCount,
			"failed_count":   fields.FailedCount,
			"error_message":  fields.ErrorMessage,
			"finished_at":    fields.FinishedAt,
		})
	return result.RowsAffected, result.Error
}

// UpdateIndustry 更新会话行业标签
func (r *GormImportSessionRepository) UpdateIndustry(id uint, industry *string) (int64, error) {
	result := r.db.Model(&models.ImportSession{}).
		Where("id = ?", id).
		Update("industry", industry)
	return result.RowsAffected, result.Error
}
