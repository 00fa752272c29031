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
	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/repository"
	"github.com/contact-dispatch/internal/vcard"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const numberStatsCacheTTL = 30 * time.Second

// NumberPoolService 号码池服务
type NumberPoolService struct {
	numberRepo      repository.ContactNumberRepository
	reservationRepo repository.NumberReservationRepository
	batchRepo       repository.VcfBatchRepository
}

// NewNumberPoolService 创建号码池服务
func NewNumberPoolService(numberRepo repository.ContactNumberRepository, reservationRepo repository.NumberReservationRepository, batchRepo repository.VcfBatchRepository) *NumberPoolService {
	return &NumberPoolService{
		numberRepo:      numberRepo,
		reservationRepo: reservationRepo,
		batchRepo:       batchRepo,
	}
}

// NumberImportResult 号码导入结果
type NumberImportResult struct {
	Parsed     int `json:"parsed"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// Reservation 一次区间占用
type Reservation struct {
	Token    string                 `json:"token"`
	DeviceID string                 `json:"device_id"`
	Range    allocation.Range       `json:"range"`
	Numbers  []models.ContactNumber `json:"-"`
}

// ImportFromText 解析号码文本并入库，重复手机号跳过
func (s *NumberPoolService) ImportFromText(ctx context.Context, content, sourceFile string) (*NumberImportResult, error) {
	parsed := vcard.ParseNumberText(content, constants.DefaultContactNamePrefix)
	if len(parsed) == 0 {
		return nil, ErrNumberImportEmpty
	}
	if len(parsed) > constants.MaxNumberImportLines {
		parsed = parsed[:constants.MaxNumberImportLines]
	}

	now := time.Now()
	items := make([]models.ContactNumber, 0, len(parsed))
	for _, row := range parsed {
		items = append(items, models.ContactNumber{
			Phone:      row.Phone,
			Name:       row.Name,
			SourceFile: strings.TrimSpace(sourceFile),
			Status:     constants.NumberStatusNotImported,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	result := &NumberImportResult{Parsed: len(parsed)}
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, duplicates, err := s.numberRepo.WithTx(tx).InsertIgnoreDuplicates(items)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		result.Duplicates = duplicates
		return nil
	})
	if err != nil {
		logger.Errorw("number_pool_import_failed", "source_file", sourceFile, "error", err)
		return nil, ErrNumberImportFailed
	}
	s.invalidateStats(ctx)
	logger.Infow("number_pool_imported",
		"source_file", sourceFile,
		"parsed", result.Parsed,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// ListNumbers 分页查询号码
func (s *NumberPoolService) ListNumbers(filter repository.ContactNumberListFilter) ([]models.ContactNumber, int64, error) {
	items, total, err := s.numberRepo.List(filter)
	if err != nil {
		return nil, 0, ErrNumberFetchFailed
	}
	return items, total, nil
}

// Stats 号码池统计，启用 Redis 时短时缓存
func (s *NumberPoolService) Stats(ctx context.Context) (*repository.NumberStats, error) {
	var cached repository.NumberStats
	if hit, err := cache.GetJSON(ctx, constants.CacheKeyNumberStats, &cached); err == nil && hit {
		return &cached, nil
	}
	stats, err := s.numberRepo.Stats()
	if err != nil {
		return nil, ErrNumberFetchFailed
	}
	if err := cache.SetJSON(ctx, constants.CacheKeyNumberStats, stats, numberStatsCacheTTL); err != nil {
		logger.Warnw("number_pool_stats_cache_set_failed", "error", err)
	}
	return stats, nil
}

// FetchByRange 获取区间内的号码
func (s *NumberPoolService) FetchByRange(ctx context.Context, r allocation.Range, onlyUnconsumed bool) ([]models.ContactNumber, error) {
	start, end, ok := rangeToIDs(r)
	if !ok {
		return nil, ErrNumberRangeInvalid
	}
	items, err := s.numberRepo.FetchByRange(start, end, onlyUnconsumed)
	if err != nil {
		return nil, ErrNumberFetchFailed
	}
	return items, nil
}

// MarkUsedByRange 标记区间内号码已消费，同一 (区间, 批次) 重复调用返回 0
func (s *NumberPoolService) MarkUsedByRange(ctx context.Context, r allocation.Range, batchID, deviceID string) (int64, error) {
	start, end, ok := rangeToIDs(r)
	if !ok {
		return 0, ErrNumberRangeInvalid
	}
	affected, err := s.numberRepo.MarkUsedByRange(start, end, batchID, deviceID, time.Now())
	if err != nil {
		logger.Errorw("number_pool_mark_used_failed", "start", start, "end", end, "batch_id", batchID, "error", err)
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return affected, nil
}

// ResetToUnimported 恢复号码为未导入
func (s *NumberPoolService) ResetToUnimported(ctx context.Context, ids []uint) (int64, error) {
	affected, err := s.numberRepo.ResetToUnimported(ids)
	if err != nil {
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return affected, nil
}

// ReserveRange 在一个事务内占用区间内的号码。
// 区间内已有号码被其他占用持有，或条件更新数量不足时返回 ErrReservationConflict。
func (s *NumberPoolService) ReserveRange(ctx context.Context, deviceID string, r allocation.Range, onlyUnconsumed bool) (*Reservation, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	start, end, ok := rangeToIDs(r)
	if !ok {
		return nil, ErrNumberRangeInvalid
	}

	reservation := &Reservation{DeviceID: deviceID, Range: r}
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		numbers, err := s.numberRepo.WithTx(tx).FetchByRange(start, end, onlyUnconsumed)
		if err != nil {
			return err
		}
		for _, number := range numbers {
			if number.ReservationToken != nil {
				return ErrReservationConflict
			}
		}
		reservation.Numbers = numbers
		if len(numbers) == 0 {
			return nil
		}
		return s.claim(tx, reservation)
	})
	if err != nil {
		return nil, wrapReservationError(err, deviceID)
	}
	s.invalidateStats(ctx)
	return reservation, nil
}

// ReserveNext 按 ID 顺序占用 count 个可用号码
func (s *NumberPoolService) ReserveNext(ctx context.Context, deviceID string, count int, industry string) (*Reservation, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if count <= 0 {
		return nil, ErrAllocationCountZero
	}

	reservation := &Reservation{DeviceID: deviceID}
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		numbers, err := s.numberRepo.WithTx(tx).FetchAvailable(count, industry)
		if err != nil {
			return err
		}
		if len(numbers) == 0 {
			return ErrReservationEmpty
		}
		reservation.Numbers = numbers
		reservation.Range = allocation.Range{
			Start: int64(numbers[0].ID),
			End:   int64(numbers[len(numbers)-1].ID),
		}
		return s.claim(tx, reservation)
	})
	if err != nil {
		return nil, wrapReservationError(err, deviceID)
	}
	s.invalidateStats(ctx)
	return reservation, nil
}

func (s *NumberPoolService) claim(tx *gorm.DB, reservation *Reservation) error {
	now := time.Now()
	token := uuid.NewString()
	ids := numberIDs(reservation.Numbers)
	affected, err := s.numberRepo.WithTx(tx).Reserve(ids, token, now)
	if err != nil {
		return err
	}
	if affected != int64(len(ids)) {
		return ErrReservationConflict
	}
	record := &models.NumberReservation{
		Token:     token,
		DeviceID:  reservation.DeviceID,
		StartID:   uint(reservation.Range.Start),
		EndID:     uint(reservation.Range.End),
		Count:     len(ids),
		Status:    constants.ReservationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reservationRepo.WithTx(tx).Create(record); err != nil {
		return err
	}
	reservation.Token = token
	return nil
}

// AttachBatch 将占用与批次关联，供会话成功后按批次提交
func (s *NumberPoolService) AttachBatch(ctx context.Context, token, batchID string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.reservationRepo.AttachBatch(token, batchID); err != nil {
		return ErrNumberUpdateFailed
	}
	return nil
}

// CommitReservation 将占用下的号码标记为已消费并关闭占用
func (s *NumberPoolService) CommitReservation(ctx context.Context, token, batchID string) (int64, error) {
	var affected int64
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.reservationRepo.WithTx(tx).GetByToken(token)
		if err != nil {
			return err
		}
		if record == nil {
			return ErrReservationNotFound
		}
		if record.Status != constants.ReservationStatusActive {
			return ErrReservationNotActive
		}
		affected, err = s.numberRepo.WithTx(tx).MarkUsedByToken(token, batchID, record.DeviceID, time.Now())
		if err != nil {
			return err
		}
		_, err = s.reservationRepo.WithTx(tx).Transition(token, constants.ReservationStatusActive, constants.ReservationStatusCommitted, &batchID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) || errors.Is(err, ErrReservationNotActive) {
			return 0, err
		}
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return affected, nil
}

// ReleaseReservation 释放占用，号码回到可分配状态
func (s *NumberPoolService) ReleaseReservation(ctx context.Context, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	var released int64
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.reservationRepo.WithTx(tx).Transition(token, constants.ReservationStatusActive, constants.ReservationStatusReleased, nil)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		released, err = s.numberRepo.WithTx(tx).ReleaseByToken(token)
		return err
	})
	if err != nil {
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return released, nil
}

// CommitBatch 会话成功后提交批次：存在有效占用时提交占用，否则直接标记批次成员
func (s *NumberPoolService) CommitBatch(ctx context.Context, batchID, deviceID string) (int64, error) {
	record, err := s.reservationRepo.GetActiveByBatchID(batchID)
	if err != nil {
		return 0, ErrNumberFetchFailed
	}
	if record != nil {
		return s.CommitReservation(ctx, record.Token, batchID)
	}
	ids, err := s.batchRepo.ListMemberIDs(batchID)
	if err != nil {
		return 0, ErrNumberFetchFailed
	}
	affected, err := s.numberRepo.MarkUsedByIDs(ids, batchID, deviceID, time.Now())
	if err != nil {
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return affected, nil
}

// ReleaseBatch 会话失败后释放批次对应的占用
func (s *NumberPoolService) ReleaseBatch(ctx context.Context, batchID string) (int64, error) {
	record, err := s.reservationRepo.GetActiveByBatchID(batchID)
	if err != nil {
		return 0, ErrNumberFetchFailed
	}
	if record == nil {
		return 0, nil
	}
	return s.ReleaseReservation(ctx, record.Token)
}

// TagIndustryByBatch 为批次及其成员号码设置行业标签
func (s *NumberPoolService) TagIndustryByBatch(ctx context.Context, batchID, industry string) (int64, error) {
	batch, err := s.batchRepo.GetByBatchID(batchID)
	if err != nil {
		return 0, ErrNumberFetchFailed
	}
	if batch == nil {
		return 0, ErrBatchNotFound
	}
	value := normalizeOptional(industry)
	var affected int64
	err = models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTx(tx).UpdateIndustry(batchID, value); err != nil {
			return err
		}
		ids, err := s.batchRepo.WithTx(tx).ListMemberIDs(batchID)
		if err != nil {
			return err
		}
		affected, err = s.numberRepo.WithTx(tx).TagIndustry(ids, value)
		return err
	})
	if err != nil {
		return 0, ErrNumberUpdateFailed
	}
	s.invalidateStats(ctx)
	return affected, nil
}

func (s *NumberPoolService) invalidateStats(ctx context.Context) {
	if err := cache.Del(ctx, constants.CacheKeyNumberStats); err != nil {
		logger.Warnw("number_pool_stats_cache_del_failed", "error", err)
	}
}

func wrapReservationError(err error, deviceID string) error {
	switch {
	case errors.Is(err, ErrReservationConflict), errors.Is(err, ErrReservationEmpty):
		logger.Warnw("number_pool_reserve_rejected", "device_id", deviceID, "error", err)
		return err
	default:
		logger.Errorw("number_pool_reserve_failed", "device_id", deviceID, "error", err)
		return ErrNumberUpdateFailed
	}
}

func rangeToIDs(r allocation.Range) (uint, uint, bool) {
	if !r.Valid() || r.Start < 0 {
		return 0, 0, false
	}
	return uint(r.Start), uint(r.End), true
}

func numberIDs(numbers []models.ContactNumber) []uint {
	ids := make([]uint, 0, len(numbers))
	for _, number := range numbers {
		ids = append(ids, number.ID)
	}
	return ids
}

func normalizeOptional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
