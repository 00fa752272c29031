package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contact-dispatch/internal/allocation"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/models"
)

func newAllocationTestService(f *pipelineFixture, importer ImportCollaborator) *AllocationService {
	executor := f.executor(NewImportRouter(importer, nil), nil)
	return NewAllocationService(f.pool, f.packager, f.ledger, f.tracker, executor, time.Second)
}

func TestAllocationServiceReserveRangeConflict(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 10)
	ctx := context.Background()

	first, err := f.pool.ReserveRange(ctx, "dev-1", allocation.Range{Start: 1, End: 5}, true)
	if err != nil || len(first.Numbers) != 5 || first.Token == "" {
		t.Fatalf("first reservation failed: %+v %v", first, err)
	}
	if _, err := f.pool.ReserveRange(ctx, "dev-2", allocation.Range{Start: 4, End: 8}, true); !errors.Is(err, ErrReservationConflict) {
		t.Fatalf("expected ErrReservationConflict, got %v", err)
	}
	var reserved int64
	f.db.Model(&models.ContactNumber{}).Where("reservation_token IS NOT NULL").Count(&reserved)
	if reserved != 5 {
		t.Fatalf("conflicting reservation must roll back, reserved=%d", reserved)
	}

	if _, err := f.pool.ReleaseReservation(ctx, first.Token); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := f.pool.ReserveRange(ctx, "dev-2", allocation.Range{Start: 4, End: 8}, true); err != nil {
		t.Fatalf("reserve after release failed: %v", err)
	}
}

func TestAllocationServiceExecuteAssignmentsRejectsOverlap(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 10)
	svc := newAllocationTestService(f, &fakeImporter{})

	_, err := svc.ExecuteAssignments(context.Background(), []Assignment{
		{DeviceID: "a", Start: int64Ptr(1), End: int64Ptr(6)},
		{DeviceID: "b", Start: int64Ptr(5), End: int64Ptr(10)},
	}, ExecuteOptions{Consumption: constants.ConsumptionPerRange})
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) || !errors.Is(err, ErrAllocationConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(conflictErr.Conflicts) != 1 || conflictErr.Conflicts[0].Overlap != (allocation.Range{Start: 5, End: 6}) {
		t.Fatalf("unexpected conflicts: %+v", conflictErr.Conflicts)
	}
}

func TestAllocationServiceExecuteAssignmentsConsumesSuccessfulRanges(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 10)
	svc := newAllocationTestService(f, &fakeImporter{fail: map[string]string{"b": "offline"}})

	result, err := svc.ExecuteAssignments(context.Background(), []Assignment{
		{DeviceID: "a", Start: int64Ptr(1), End: int64Ptr(5)},
		{DeviceID: "b", Start: int64Ptr(6), End: int64Ptr(10)},
		{DeviceID: "c", Start: int64Ptr(11)},
	}, ExecuteOptions{Consumption: constants.ConsumptionPerRange})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.SuccessDevices != 2 || result.FailedDevices != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	var used, reserved int64
	f.db.Model(&models.ContactNumber{}).Where("used = ?", true).Count(&used)
	f.db.Model(&models.ContactNumber{}).Where("reservation_token IS NOT NULL").Count(&reserved)
	if used != 5 {
		t.Fatalf("only device a's range should be consumed, got %d", used)
	}
	if reserved != 0 {
		t.Fatalf("reservations should be released after execution, got %d", reserved)
	}
	var first models.ContactNumber
	f.db.First(&first, 1)
	if first.UsedBatch == nil || *first.UsedBatch != result.DeviceResults[0].BatchID {
		t.Fatalf("consumed number should record batch id: %+v", first)
	}
}

func TestAllocationServiceAllocateToDevice(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 10)
	svc := newAllocationTestService(f, &fakeImporter{})
	ctx := context.Background()

	result, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-1", Count: 4})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if result.Count != 4 || result.Range != (allocation.Range{Start: 1, End: 4}) || result.SessionID == 0 {
		t.Fatalf("unexpected allocation: %+v", result)
	}
	if f.sessionStatus(t, result.SessionID) != constants.SessionStatusPending {
		t.Fatalf("allocation should open a pending session")
	}
	if !f.tracker.HasPending("dev-1") {
		t.Fatalf("allocated batch should be bound to device")
	}

	skipped, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-1", Count: 4, SkipIfPending: true})
	if err != nil || !skipped.Skipped {
		t.Fatalf("device with pending batch should be skipped: %+v %v", skipped, err)
	}
	second, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-2", Count: 4})
	if err != nil {
		t.Fatalf("second allocate failed: %v", err)
	}
	if second.Range.Start != 5 {
		t.Fatalf("reserved numbers must not be allocated twice: %+v", second)
	}

	importSvc := newSessionImportTestService(f, &fakeImporter{})
	if _, err := importSvc.ProcessPendingSessionsForDevice(ctx, "dev-1", PendingOptions{}); err != nil {
		t.Fatalf("process pending failed: %v", err)
	}
	var used int64
	f.db.Model(&models.ContactNumber{}).Where("used = ? AND imported_device_id = ?", true, "dev-1").Count(&used)
	if used != 4 {
		t.Fatalf("committed reservation should consume 4 numbers, got %d", used)
	}

	if _, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-3", Count: 0}); !errors.Is(err, ErrAllocationCountZero) {
		t.Fatalf("expected ErrAllocationCountZero, got %v", err)
	}
}

func TestAllocationServiceFailedImportReturnsNumbersToPool(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 4)
	svc := newAllocationTestService(f, &fakeImporter{})
	ctx := context.Background()

	first, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-1", Count: 4})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	importSvc := newSessionImportTestService(f, &fakeImporter{fail: map[string]string{"dev-1": "offline"}})
	summary, err := importSvc.ProcessPendingSessionsForDevice(ctx, "dev-1", PendingOptions{})
	if err != nil || summary.Failed != 1 {
		t.Fatalf("expected one failed session: %+v %v", summary, err)
	}
	if f.sessionStatus(t, first.SessionID) != constants.SessionStatusFailed {
		t.Fatalf("session should be failed")
	}

	var stranded int64
	f.db.Model(&models.ContactNumber{}).Where("status <> ?", constants.NumberStatusNotImported).Count(&stranded)
	if stranded != 0 {
		t.Fatalf("released numbers should be not_imported, %d stranded", stranded)
	}
	second, err := svc.AllocateToDevice(ctx, AllocateInput{DeviceID: "dev-2", Count: 4})
	if err != nil {
		t.Fatalf("re-allocation after failed import failed: %v", err)
	}
	if second.Count != 4 || second.Range != (allocation.Range{Start: 1, End: 4}) {
		t.Fatalf("unexpected re-allocation: %+v", second)
	}
}

func TestAllocationServiceExecuteRequiresConsumptionStrategy(t *testing.T) {
	f := setupPipelineTest(t)
	f.seed(t, 4)
	importer := &fakeImporter{}
	svc := newAllocationTestService(f, importer)

	_, err := svc.ExecuteAssignments(context.Background(), []Assignment{
		{DeviceID: "a", Start: int64Ptr(1), End: int64Ptr(4)},
	}, ExecuteOptions{})
	if !errors.Is(err, ErrConsumptionStrategyRequired) {
		t.Fatalf("expected ErrConsumptionStrategyRequired, got %v", err)
	}
	if len(importer.calls) != 0 {
		t.Fatalf("nothing should be imported without a strategy")
	}
	var reserved int64
	f.db.Model(&models.ContactNumber{}).Where("reservation_token IS NOT NULL").Count(&reserved)
	if reserved != 0 {
		t.Fatalf("rejected execution must not hold reservations, got %d", reserved)
	}
}

func TestAllocationServiceNextRangeAndBulkAssign(t *testing.T) {
	svc := NewAllocationService(nil, nil, nil, nil, nil, 0)
	next, err := svc.NextRange([]allocation.Range{{Start: 0, End: 99}, {Start: 100, End: 199}}, 50)
	if err != nil || next != (allocation.Range{Start: 200, End: 249}) {
		t.Fatalf("unexpected next range: %+v %v", next, err)
	}
	if _, err := svc.NextRange(nil, 0); !errors.Is(err, ErrAllocationCountZero) {
		t.Fatalf("expected ErrAllocationCountZero, got %v", err)
	}
	assigned, err := svc.BulkAssign([]string{"a", "b"}, nil, 10)
	if err != nil || len(assigned) != 2 || assigned[1].Range.Start != 10 {
		t.Fatalf("unexpected bulk assign: %+v %v", assigned, err)
	}
}
