package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/contact-dispatch/internal/allocation"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/logger"
	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/vcard"

	"gorm.io/gorm"
)

// BatchPackager 将号码打包为 VCF 文件并登记批次
type BatchPackager struct {
	batchRepo   repository.VcfBatchRepository
	numberRepo  repository.ContactNumberRepository
	artifactDir string
	now         func() time.Time
}

// NewBatchPackager 创建批次打包服务
func NewBatchPackager(batchRepo repository.VcfBatchRepository, numberRepo repository.ContactNumberRepository, artifactDir string) *BatchPackager {
	artifactDir = strings.TrimSpace(artifactDir)
	if artifactDir == "" {
		artifactDir = filepath.Join("data", "vcf")
	}
	return &BatchPackager{
		batchRepo:   batchRepo,
		numberRepo:  numberRepo,
		artifactDir: artifactDir,
		now:         time.Now,
	}
}

// RegisterBatchInput 登记批次输入
type RegisterBatchInput struct {
	DeviceID string
	Numbers  []models.ContactNumber
	Range    *allocation.Range
	Industry *string
}

// RegisterBatch 生成 VCF 文件并登记批次。号码为空时仍登记批次。
func (p *BatchPackager) RegisterBatch(ctx context.Context, deviceID string, numbers []models.ContactNumber, r *allocation.Range) (*models.VcfBatch, error) {
	return p.Register(ctx, RegisterBatchInput{DeviceID: deviceID, Numbers: numbers, Range: r})
}

// Register 生成 VCF 文件并在同一事务内登记批次与成员映射
func (p *BatchPackager) Register(ctx context.Context, input RegisterBatchInput) (*models.VcfBatch, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if input.Range != nil && !input.Range.Valid() {
		return nil, ErrNumberRangeInvalid
	}

	now := p.now()
	startID, endID := sourceBounds(input.Numbers, input.Range)
	batchID := BuildBatchID(deviceID, startID, endID, now)

	if err := os.MkdirAll(p.artifactDir, 0o755); err != nil {
		logger.Errorw("batch_packager_mkdir_failed", "dir", p.artifactDir, "error", err)
		return nil, ErrArtifactWriteFailed
	}

	for attempt := 0; attempt < 5; attempt++ {
		candidate := batchID
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d", batchID, attempt)
		}
		existing, err := p.batchRepo.GetByBatchID(candidate)
		if err != nil {
			return nil, ErrBatchCreateFailed
		}
		if existing == nil {
			batchID = candidate
			break
		}
	}

	artifactPath := filepath.Join(p.artifactDir, artifactFileName(batchID))
	if err := writeArtifact(artifactPath, vcard.Build(toCards(input.Numbers))); err != nil {
		logger.Errorw("batch_packager_write_failed", "path", artifactPath, "error", err)
		return nil, ErrArtifactWriteFailed
	}

	batch := &models.VcfBatch{
		BatchID:     batchID,
		DeviceID:    deviceID,
		VcfFilePath: artifactPath,
		Industry:    input.Industry,
		TotalCount:  len(input.Numbers),
		CreatedAt:   now,
	}
	if startID != nil {
		start := uint(*startID)
		batch.SourceStartID = &start
	}
	if endID != nil {
		end := uint(*endID)
		batch.SourceEndID = &end
	}

	ids := numberIDs(input.Numbers)
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.batchRepo.WithTx(tx).Create(batch, ids); err != nil {
			return err
		}
		_, err := p.numberRepo.WithTx(tx).MarkVcfGenerated(ids, now)
		return err
	})
	if err != nil {
		_ = os.Remove(artifactPath)
		logger.Errorw("batch_packager_register_failed", "batch_id", batchID, "error", err)
		return nil, ErrBatchCreateFailed
	}

	logger.Infow("batch_packager_registered",
		"batch_id", batchID,
		"device_id", deviceID,
		"total", batch.TotalCount,
		"path", artifactPath,
	)
	return batch, nil
}

// BatchDetail 批次详情
type BatchDetail struct {
	Batch       *models.VcfBatch `json:"batch"`
	MemberCount int64            `json:"member_count"`
}

// GetBatch 获取批次及成员数量
func (p *BatchPackager) GetBatch(ctx context.Context, batchID string) (*BatchDetail, error) {
	batch, err := p.batchRepo.GetByBatchID(strings.TrimSpace(batchID))
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	count, err := p.batchRepo.CountMembers(batch.BatchID)
	if err != nil {
		return nil, ErrBatchFetchFailed
	}
	return &BatchDetail{Batch: batch, MemberCount: count}, nil
}

// ListBatches 分页查询批次
func (p *BatchPackager) ListBatches(ctx context.Context, filter repository.VcfBatchListFilter) ([]models.VcfBatch, int64, error) {
	items, total, err := p.batchRepo.List(filter)
	if err != nil {
		return nil, 0, ErrBatchFetchFailed
	}
	return items, total, nil
}

// BuildBatchID 生成批次号 vcf_<设备>_<起点>_<终点>_<毫秒时间戳>，无成员时区间部分为 _empty_
func BuildBatchID(deviceID string, startID, endID *int64, at time.Time) string {
	device := sanitizeDeviceID(deviceID)
	if startID == nil || endID == nil {
		return fmt.Sprintf("%s_%s%s%d", constants.BatchIDPrefix, device, constants.BatchEmptyRangeTag, at.UnixMilli())
	}
	return fmt.Sprintf("%s_%s_%d_%d_%d", constants.BatchIDPrefix, device, *startID, *endID, at.UnixMilli())
}

// sourceBounds 优先使用显式区间，否则取成员 ID 的最小与最大值
func sourceBounds(numbers []models.ContactNumber, r *allocation.Range) (*int64, *int64) {
	if r != nil {
		start, end := r.Start, r.End
		return &start, &end
	}
	if len(numbers) == 0 {
		return nil, nil
	}
	minID, maxID := int64(numbers[0].ID), int64(numbers[0].ID)
	for _, number := range numbers[1:] {
		id := int64(number.ID)
		minID = min(minID, id)
		maxID = max(maxID, id)
	}
	return &minID, &maxID
}

func sanitizeDeviceID(deviceID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(deviceID))
}

func artifactFileName(batchID string) string {
	return batchID + ".vcf"
}

func toCards(numbers []models.ContactNumber) []vcard.Card {
	cards := make([]vcard.Card, 0, len(numbers))
	for _, number := range numbers {
		cards = append(cards, vcard.Card{Name: number.Name, Phone: number.Phone})
	}
	return cards
}

// writeArtifact 先写临时文件再重命名，避免读到半截文件
func writeArtifact(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
