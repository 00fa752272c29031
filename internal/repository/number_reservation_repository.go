package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/models"

	"gorm.io/gorm"
)

// NumberReservationRepository 号码占用记录数据访问接口
type NumberReservationRepository interface {
	Create(reservation *models.NumberReservation) error
	GetByToken(token string) (*models.NumberReservation, error)
	GetActiveByBatchID(batchID string) (*models.NumberReservation, error)
	ListActiveByDevice(deviceID string) ([]models.NumberReservation, error)
	AttachBatch(token, batchID string) error
	Transition(token, fromStatus, toStatus string, batchID *string) (int64, error)
	WithTx(tx *gorm.DB) *GormNumberReservationRepository
}

// GormNumberReservationRepository GORM 实现
type GormNumberReservationRepository struct {
	db *gorm.DB
}

// NewNumberReservationRepository 创建占用记录仓库
func NewNumberReservationRepository(db *gorm.DB) *GormNumberReservationRepository {
	return &GormNumberReservationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormNumberReservationRepository) WithTx(tx *gorm.DB) *GormNumberReservationRepository {
	if tx == nil {
		return r
	}
	return &GormNumberReservationRepository{db: tx}
}

// Create 创建占用记录
func (r *GormNumberReservationRepository) Create(reservation *models.NumberReservation) error {
	return r.db.Create(reservation).Error
}

// GetByToken 根据令牌获取占用记录
func (r *GormNumberReservationRepository) GetByToken(token string) (*models.NumberReservation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	var reservation models.NumberReservation
	if err := r.db.Where("token = ?", token).First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// GetActiveByBatchID 获取批次对应的有效占用
func (r *GormNumberReservationRepository) GetActiveByBatchID(batchID string) (*models.NumberReservation, error) {
	var reservation models.NumberReservation
	err := r.db.Where("batch_id = ? AND status = ?", batchID, constants.ReservationStatusActive).
		Order("id desc").
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// ListActiveByDevice 获取设备的有效占用
func (r *GormNumberReservationRepository) ListActiveByDevice(deviceID string) ([]models.NumberReservation, error) {
	var items []models.NumberReservation
	if err := r.db.Where("device_id = ? AND status = ?", deviceID, constants.ReservationStatusActive).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// AttachBatch 关联批次号
func (r *GormNumberReservationRepository) AttachBatch(token, batchID string) error {
	return r.db.Model(&models.NumberReservation{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"batch_id":   batchID,
			"updated_at": time.Now(),
		}).Error
}

// Transition 条件变更占用状态
func (r *GormNumberReservationRepository) Transition(token, fromStatus, toStatus string, batchID *string) (int64, error) {
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	if batchID != nil {
		updates["batch_id"] = *batchID
	}
	result := r.db.Model(&models.NumberReservation{}).
		Where("token = ? AND status = ?", token, fromStatus).
		Updates(updates)
	return result.RowsAffected, result.Error
}
