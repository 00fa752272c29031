package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type pipelineFixture struct {
	db         *gorm.DB
	numberRepo *repository.GormContactNumberRepository
	batchRepo  *repository.GormVcfBatchRepository
	session    *repository.GormImportSessionRepository
	pool       *NumberPoolService
	packager   *BatchPackager
	ledger     *SessionLedger
	tracker    *BindingTracker
}

func setupPipelineTest(t *testing.T) *pipelineFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:pipeline_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	numberRepo := repository.NewContactNumberRepository(db)
	batchRepo := repository.NewVcfBatchRepository(db)
	sessionRepo := repository.NewImportSessionRepository(db)
	reservationRepo := repository.NewNumberReservationRepository(db)
	return &pipelineFixture{
		db:         db,
		numberRepo: numberRepo,
		batchRepo:  batchRepo,
		session:    sessionRepo,
		pool:       NewNumberPoolService(numberRepo, reservationRepo, batchRepo),
		packager:   NewBatchPackager(batchRepo, numberRepo, t.TempDir()),
		ledger:     NewSessionLedger(sessionRepo, batchRepo, numberRepo),
		tracker:    NewBindingTracker(),
	}
}

// seed 写入 count 个号码，ID 从 1 开始连续
func (f *pipelineFixture) seed(t *testing.T, count int) []models.ContactNumber {
	t.Helper()
	lines := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		lines = append(lines, fmt.Sprintf("号码%d,139%08d", i, i))
	}
	if _, err := f.pool.ImportFromText(context.Background(), strings.Join(lines, "\n"), "seed.txt"); err != nil {
		t.Fatalf("seed numbers failed: %v", err)
	}
	var numbers []models.ContactNumber
	if err := f.db.Order("id asc").Find(&numbers).Error; err != nil {
		t.Fatalf("load numbers failed: %v", err)
	}
	return numbers
}

func (f *pipelineFixture) executor(router *ImportRouter, verifier *Verifier) *ImportExecutor {
	executor := NewImportExecutor(f.packager, router, verifier, f.ledger, f.tracker)
	executor.sleep = func(context.Context, time.Duration) error { return nil }
	return executor
}

func (f *pipelineFixture) sessionStatus(t *testing.T, id uint) string {
	t.Helper()
	session, err := f.session.GetByID(id)
	if err != nil || session == nil {
		t.Fatalf("load session %d failed: %v", id, err)
	}
	return session.Status
}

// fakeImporter 按设备返回预设结果并记录调用
type fakeImporter struct {
	mu       sync.Mutex
	fail     map[string]string
	panicOn  map[string]bool
	calls    []string
	imported int
}

func (f *fakeImporter) ImportToDevice(ctx context.Context, deviceID string, artifact Artifact) (ImportOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, deviceID)
	f.mu.Unlock()
	if f.panicOn[deviceID] {
		panic("device exploded")
	}
	if message, ok := f.fail[deviceID]; ok {
		return ImportOutcome{Success: false, Message: message}, nil
	}
	return ImportOutcome{Success: true, ImportedCount: artifact.TotalCount + f.imported}, nil
}

func (f *fakeImporter) callCount(deviceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == deviceID {
			count++
		}
	}
	return count
}

// fixedMetrics 联系人数量固定增长 step
type fixedMetrics struct {
	mu    sync.Mutex
	count map[string]int
	step  int
}

func (m *fixedMetrics) ContactCount(ctx context.Context, deviceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == nil {
		m.count = make(map[string]int)
	}
	value := m.count[deviceID]
	m.count[deviceID] = value + m.step
	return value, nil
}

func int64Ptr(v int64) *int64 {
	return &v
}
