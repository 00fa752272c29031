package repository

import (
	"errors"
	"strings"

	"github.com/contact-dispatch/internal/models"

	"gorm.io/gorm"
)

// VcfBatchRepository VCF 批次数据访问接口
type VcfBatchRepository interface {
	Create(batch *models.VcfBatch, memberIDs []uint) error
	GetByBatchID(batchID string) (*models.VcfBatch, error)
	ListMemberIDs(batchID string) ([]uint, error)
	CountMembers(batchID string) (int64, error)
	List(filter VcfBatchListFilter) ([]models.VcfBatch, int64, error)
	UpdateIndustry(batchID string, industry *string) error
	WithTx(tx *gorm.DB) *GormVcfBatchRepository
}

// GormVcfBatchRepository GORM 实现
type GormVcfBatchRepository struct {
	db *gorm.DB
}

// NewVcfBatchRepository 创建批次仓库
func NewVcfBatchRepository(db *gorm.DB) *GormVcfBatchRepository {
	return &GormVcfBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVcfBatchRepository) WithTx(tx *gorm.DB) *GormVcfBatchRepository {
	if tx == nil {
		return r
	}
	return &GormVcfBatchRepository{db: tx}
}

// Create 创建批次及其成员映射，调用方负责事务
func (r *GormVcfBatchRepository) Create(batch *models.VcfBatch, memberIDs []uint) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	if err := r.db.Create(batch).Error; err != nil {
		return err
	}
	if len(memberIDs) == 0 {
		return nil
	}
	members := make([]models.VcfBatchMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, models.VcfBatchMember{BatchID: batch.BatchID, NumberID: id})
	}
	return r.db.CreateInBatches(&members, 500).Error
}

// GetByBatchID 根据批次号获取批次
func (r *GormVcfBatchRepository) GetByBatchID(batchID string) (*models.VcfBatch, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, nil
	}
	var batch models.VcfBatch
	if err := r.db.Where("batch_id = ?", batchID).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// ListMemberIDs 获取批次成员号码ID
func (r *GormVcfBatchRepository) ListMemberIDs(batchID string) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.VcfBatchMember{}).
		Where("batch_id = ?", batchID).
		Order("number_id asc").
		Pluck("number_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountMembers 统计批次成员数量
func (r *GormVcfBatchRepository) CountMembers(batchID string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.VcfBatchMember{}).Where("batch_id = ?", batchID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List 分页查询批次
func (r *GormVcfBatchRepository) List(filter VcfBatchListFilter) ([]models.VcfBatch, int64, error) {
	query := r.db.Model(&models.VcfBatch{})
	if deviceID := strings.TrimSpace(filter.DeviceID); deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	if industry := strings.TrimSpace(filter.Industry); industry != "" {
		query = query.Where("industry = ?", industry)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.VcfBatch
	if err := query.Order("id desc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateIndustry 更新批次行业标签
func (r *GormVcfBatchRepository) UpdateIndustry(batchID string, industry *string) error {
	return r.db.Model(&models.VcfBatch{}).
		Where("batch_id = ?", batchID).
		Update("industry", industry).Error
}
