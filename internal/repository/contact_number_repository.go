package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactNumberRepository 号码池数据访问接口
type ContactNumberRepository interface {
	InsertIgnoreDuplicates(items []models.ContactNumber) (int, int, error)
	List(filter ContactNumberListFilter) ([]models.ContactNumber, int64, error)
	ListByIDs(ids []uint) ([]models.ContactNumber, error)
	ListByToken(token string) ([]models.ContactNumber, error)
	GetByID(id uint) (*models.ContactNumber, error)
	FetchByRange(start, end uint, onlyUnconsumed bool) ([]models.ContactNumber, error)
	FetchAvailable(limit int, industry string) ([]models.ContactNumber, error)
	Reserve(ids []uint, token string, reservedAt time.Time) (int64, error)
	ReleaseByToken(token string) (int64, error)
	MarkUsedByRange(start, end uint, batchID, deviceID string, usedAt time.Time) (int64, error)
	MarkUsedByToken(token, batchID, deviceID string, usedAt time.Time) (int64, error)
	MarkUsedByIDs(ids []uint, batchID, deviceID string, usedAt time.Time) (int64, error)
	MarkVcfGenerated(ids []uint, updatedAt time.Time) (int64, error)
	ResetToUnimported(ids []uint) (int64, error)
	TagIndustry(ids []uint, industry *string) (int64, error)
	Stats() (*NumberStats, error)
	WithTx(tx *gorm.DB) *GormContactNumberRepository
}

// GormContactNumberRepository GORM 实现
type GormContactNumberRepository struct {
	db *gorm.DB
}

// NewContactNumberRepository 创建号码池仓库
func NewContactNumberRepository(db *gorm.DB) *GormContactNumberRepository {
	return &GormContactNumberRepository{db: db}
}

// WithTx 绑定事务
func (r *GormContactNumberRepository) WithTx(tx *gorm.DB) *GormContactNumberRepository {
	if tx == nil {
		return r
	}
	return &GormContactNumberRepository{db: tx}
}

// InsertIgnoreDuplicates 逐条插入号码，手机号重复时跳过，返回（新增数, 重复数）
func (r *GormContactNumberRepository) InsertIgnoreDuplicates(items []models.ContactNumber) (int, int, error) {
	inserted := 0
	duplicates := 0
	for i := range items {
		item := items[i]
		if item.Status == "" {
			item.Status = constants.NumberStatusNotImported
		}
		result := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoNothing: true,
		}).Create(&item)
		if result.Error != nil {
			return inserted, duplicates, result.Error
		}
		if result.RowsAffected == 0 {
			duplicates++
			continue
		}
		inserted++
	}
	return inserted, duplicates, nil
}

// List 分页查询号码
func (r *GormContactNumberRepository) List(filter ContactNumberListFilter) ([]models.ContactNumber, int64, error) {
	query := r.db.Model(&models.ContactNumber{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if industry := strings.TrimSpace(filter.Industry); industry != "" {
		query = query.Where("industry = ?", industry)
	}
	if filter.Used != nil {
		query = query.Where("used = ?", *filter.Used)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		operator := likeOperatorByDialect(dbDialectName(r.db))
		query = query.Where("phone "+operator+" ? OR name "+operator+" ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var items []models.ContactNumber
	if err := query.Order("id asc").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByIDs 按 ID 列表查询号码
func (r *GormContactNumberRepository) ListByIDs(ids []uint) ([]models.ContactNumber, error) {
	if len(ids) == 0 {
		return []models.ContactNumber{}, nil
	}
	var items []models.ContactNumber
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListByToken 查询占用令牌下的号码
func (r *GormContactNumberRepository) ListByToken(token string) ([]models.ContactNumber, error) {
	if strings.TrimSpace(token) == "" {
		return []models.ContactNumber{}, nil
	}
	var items []models.ContactNumber
	if err := r.db.Where("reservation_token = ?", token).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID 根据 ID 获取号码
func (r *GormContactNumberRepository) GetByID(id uint) (*models.ContactNumber, error) {
	var item models.ContactNumber
	if err := r.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// FetchByRange 获取 ID 闭区间内的号码，onlyUnconsumed 为 true 时排除已消费号码
func (r *GormContactNumberRepository) FetchByRange(start, end uint, onlyUnconsumed bool) ([]models.ContactNumber, error) {
	if start > end {
		return []models.ContactNumber{}, nil
	}
	query := r.db.Model(&models.ContactNumber{}).Where("id >= ? AND id <= ?", start, end)
	if onlyUnconsumed {
		query = query.Where("used = ?", false)
	}
	var items []models.ContactNumber
	if err := query.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FetchAvailable 按 ID 顺序获取未消费且未被占用的号码
func (r *GormContactNumberRepository) FetchAvailable(limit int, industry string) ([]models.ContactNumber, error) {
	if limit <= 0 {
		return []models.ContactNumber{}, nil
	}
	query := r.db.Model(&models.ContactNumber{}).
		Where("used = ? AND reservation_token IS NULL AND status = ?", false, constants.NumberStatusNotImported)
	if industry = strings.TrimSpace(industry); industry != "" {
		query = query.Where("industry = ?", industry)
	}
	var items []models.ContactNumber
	if err := query.Order("id asc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Reserve 为未占用的号码写入占用令牌，返回实际占用数量
func (r *GormContactNumberRepository) Reserve(ids []uint, token string, reservedAt time.Time) (int64, error) {
	if len(ids) == 0 || strings.TrimSpace(token) == "" {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id IN ? AND reservation_token IS NULL", ids).
		Updates(map[string]interface{}{
			"reservation_token": token,
			"reserved_at":       reservedAt,
			"updated_at":        reservedAt,
		})
	return result.RowsAffected, result.Error
}

// ReleaseByToken 清除占用令牌，未消费的号码回到未导入状态
func (r *GormContactNumberRepository) ReleaseByToken(token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("reservation_token = ?", token).
		Updates(map[string]interface{}{
			"status":            gorm.Expr("CASE WHEN used = ? THEN status ELSE ? END", true, constants.NumberStatusNotImported),
			"reservation_token": nil,
			"reserved_at":       nil,
			"updated_at":        time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkUsedByRange 将区间内未消费的号码标记为已导入，重复调用不会重复计数
func (r *GormContactNumberRepository) MarkUsedByRange(start, end uint, batchID, deviceID string, usedAt time.Time) (int64, error) {
	if start > end {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id >= ? AND id <= ? AND used = ?", start, end, false).
		Updates(usedColumns(batchID, deviceID, usedAt))
	return result.RowsAffected, result.Error
}

// MarkUsedByToken 将占用令牌下未消费的号码标记为已导入，并清除令牌
func (r *GormContactNumberRepository) MarkUsedByToken(token, batchID, deviceID string, usedAt time.Time) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("reservation_token = ? AND used = ?", token, false).
		Updates(usedColumns(batchID, deviceID, usedAt))
	if result.Error != nil {
		return 0, result.Error
	}
	if _, err := r.ReleaseByToken(token); err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

// MarkUsedByIDs 将指定号码中未消费的部分标记为已导入
func (r *GormContactNumberRepository) MarkUsedByIDs(ids []uint, batchID, deviceID string, usedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id IN ? AND used = ?", ids, false).
		Updates(usedColumns(batchID, deviceID, usedAt))
	return result.RowsAffected, result.Error
}

func usedColumns(batchID, deviceID string, usedAt time.Time) map[string]interface{} {
	columns := map[string]interface{}{
		"used":       true,
		"used_at":    usedAt,
		"used_batch": batchID,
		"status":     constants.NumberStatusImported,
		"updated_at": usedAt,
	}
	if deviceID != "" {
		columns["imported_device_id"] = deviceID
	}
	return columns
}

// MarkVcfGenerated 将未导入的号码标记为已生成 VCF
func (r *GormContactNumberRepository) MarkVcfGenerated(ids []uint, updatedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id IN ? AND status = ?", ids, constants.NumberStatusNotImported).
		Updates(map[string]interface{}{
			"status":     constants.NumberStatusVcfGenerated,
			"updated_at": updatedAt,
		})
	return result.RowsAffected, result.Error
}

// ResetToUnimported 将号码恢复为未导入状态，返回实际恢复数量
func (r *GormContactNumberRepository) ResetToUnimported(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":             constants.NumberStatusNotImported,
			"used":               false,
			"used_at":            nil,
			"used_batch":         nil,
			"imported_device_id": nil,
			"reservation_token":  nil,
			"reserved_at":        nil,
			"updated_at":         time.Now(),
		})
	return result.RowsAffected, result.Error
}

// TagIndustry 批量设置行业标签，industry 为 nil 时清除
func (r *GormContactNumberRepository) TagIndustry(ids []uint, industry *string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.ContactNumber{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"industry":   industry,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Stats 统计号码池
func (r *GormContactNumberRepository) Stats() (*NumberStats, error) {
	stats := &NumberStats{
		ByStatus:   map[string]int64{},
		ByIndustry: map[string]int64{},
	}
	if err := r.db.Model(&models.ContactNumber{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.ContactNumber{}).Where("used = ?", true).Count(&stats.Used).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.ContactNumber{}).Where("reservation_token IS NOT NULL").Count(&stats.Reserved).Error; err != nil {
		return nil, err
	}

	type groupRow struct {
		Bucket string
		Total  int64
	}
	var statusRows []groupRow
	if err := r.db.Model(&models.ContactNumber{}).
		Select("status AS bucket, COUNT(*) AS total").
		Group("status").
		Scan(&statusRows).Error; err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Bucket] = row.Total
	}

	var industryRows []groupRow
	if err := r.db.Model(&models.ContactNumber{}).
		Select("COALESCE(industry, '') AS bucket, COUNT(*) AS total").
		Group("COALESCE(industry, '')").
		Scan(&industryRows).Error; err != nil {
		return nil, err
	}
	for _, row := range industryRows {
		stats.ByIndustry[row.Bucket] = row.Total
	}
	return stats, nil
}
