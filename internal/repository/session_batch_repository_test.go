package repository

import (
	"testing"
	"time"

	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/models"
)

func TestVcfBatchRepositoryCreateWithMembers(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewVcfBatchRepository(db)

	start, end := uint(1), uint(3)
	batch := &models.VcfBatch{
		BatchID:       "vcf_dev_1_3_1",
		DeviceID:      "dev",
		VcfFilePath:   "/tmp/a.vcf",
		SourceStartID: &start,
		SourceEndID:   &end,
		TotalCount:    3,
	}
	if err := repo.Create(batch, []uint{3, 1, 2}); err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	got, err := repo.GetByBatchID("vcf_dev_1_3_1")
	if err != nil || got == nil {
		t.Fatalf("get batch failed: %v", err)
	}
	ids, err := repo.ListMemberIDs(got.BatchID)
	if err != nil {
		t.Fatalf("list members failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected members: %v", ids)
	}
	missing, err := repo.GetByBatchID("nope")
	if err != nil || missing != nil {
		t.Fatalf("missing batch should return nil,nil got %+v %v", missing, err)
	}
}

func TestImportSessionRepositoryConditionalFinish(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewImportSessionRepository(db)

	session := &models.ImportSession{BatchID: "b1", DeviceID: "dev", Status: constants.SessionStatusPending, StartedAt: time.Now()}
	if err := repo.Create(session); err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	affected, err := repo.Finish(session.ID, []string{constants.SessionStatusPending}, SessionFinishFields{
		Status:        constants.SessionStatusSuccess,
		ImportedCount: 3,
	})
	if err != nil || affected != 1 {
		t.Fatalf("finish want 1 got %d err=%v", affected, err)
	}
	affected, err = repo.Finish(session.ID, []string{constants.SessionStatusPending}, SessionFinishFields{
		Status: constants.SessionStatusFailed,
	})
	if err != nil || affected != 0 {
		t.Fatalf("second finish should not apply, got %d err=%v", affected, err)
	}

	got, _ := repo.GetByID(session.ID)
	if got.Status != constants.SessionStatusSuccess || got.ImportedCount != 3 || got.FinishedAt == nil {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestImportSessionRepositoryListPendingOrder(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewImportSessionRepository(db)
	for i := 0; i < 3; i++ {
		if err := repo.Create(&models.ImportSession{BatchID: "b", DeviceID: "dev", Status: constants.SessionStatusPending, StartedAt: time.Now()}); err != nil {
			t.Fatalf("create session failed: %v", err)
		}
	}
	if err := repo.Create(&models.ImportSession{BatchID: "b", DeviceID: "other", Status: constants.SessionStatusPending, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	oldest, err := repo.ListPendingByDevice("dev", 0, false)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(oldest) != 3 || oldest[0].ID > oldest[1].ID {
		t.Fatalf("expected ascending pending list, got %+v", oldest)
	}
	newest, err := repo.ListPendingByDevice("dev", 1, true)
	if err != nil {
		t.Fatalf("list newest failed: %v", err)
	}
	if len(newest) != 1 || newest[0].ID != oldest[2].ID {
		t.Fatalf("expected newest pending, got %+v", newest)
	}
}

func TestNumberReservationRepositoryTransition(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewNumberReservationRepository(db)
	reservation := &models.NumberReservation{
		Token:    "tok",
		DeviceID: "dev",
		StartID:  1,
		EndID:    5,
		Count:    5,
		Status:   constants.ReservationStatusActive,
	}
	if err := repo.Create(reservation); err != nil {
		t.Fatalf("create reservation failed: %v", err)
	}
	if err := repo.AttachBatch("tok", "batch-1"); err != nil {
		t.Fatalf("attach batch failed: %v", err)
	}
	active, err := repo.GetActiveByBatchID("batch-1")
	if err != nil || active == nil || active.Token != "tok" {
		t.Fatalf("expected active reservation by batch, got %+v err=%v", active, err)
	}

	affected, err := repo.Transition("tok", constants.ReservationStatusActive, constants.ReservationStatusCommitted, nil)
	if err != nil || affected != 1 {
		t.Fatalf("commit want 1 got %d err=%v", affected, err)
	}
	affected, err = repo.Transition("tok", constants.ReservationStatusActive, constants.ReservationStatusReleased, nil)
	if err != nil || affected != 0 {
		t.Fatalf("release after commit should not apply, got %d err=%v", affected, err)
	}
	active, _ = repo.GetActiveByBatchID("batch-1")
	if active != nil {
		t.Fatalf("committed reservation should not be active")
	}
}
