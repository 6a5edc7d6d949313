package store

import (
	"context"
	"testing"
	"time"

	"github.com/towops/impound/internal/models"
	"github.com/towops/impound/internal/stage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openStoreTestDB opens an in-memory SQLite DB with all engine tables.
func openStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Vehicle{},
		&models.StageHistoryEntry{},
		&models.AuditEntry{},
		&models.NotificationRecord{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := openStoreTestDB(t)
	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, db
}

// seedVehicle creates a vehicle and its open history entry.
func seedVehicle(t *testing.T, db *gorm.DB, callNumber, status string, impoundedAt time.Time) {
	t.Helper()
	v := models.Vehicle{
		CallNumber:  callNumber,
		Status:      status,
		ImpoundedAt: impoundedAt,
		OwnerKnown:  true,
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	entry := models.StageHistoryEntry{
		CallNumber: callNumber,
		Stage:      string(stage.FromStatus(status)),
		EnteredAt:  impoundedAt,
		Actor:      "intake",
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("seed history: %v", err)
	}
}

func countOpenEntries(t *testing.T, db *gorm.DB, callNumber string) int64 {
	t.Helper()
	var n int64
	db.Model(&models.StageHistoryEntry{}).
		Where("call_number = ? AND exited_at IS NULL", callNumber).Count(&n)
	return n
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil)
	if err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestGetVehicle_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetVehicle(context.Background(), "C-404")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestGetVehicle_EmptyCallNumber(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetVehicle(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty call number")
	}
}

func TestActiveVehicles_ExcludesTerminal(t *testing.T) {
	s, db := newTestStore(t)
	now := time.Now()
	seedVehicle(t, db, "C-1", "initial_hold", now.AddDate(0, 0, -2))
	seedVehicle(t, db, "C-2", "disposed", now.AddDate(0, 0, -90))
	seedVehicle(t, db, "C-3", "released", now.AddDate(0, 0, -30))
	seedVehicle(t, db, "C-4", "notice_sent", now.AddDate(0, 0, -10))

	active, err := s.ActiveVehicles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active vehicles, want 2", len(active))
	}
	// Ordered by intake date, oldest first.
	if active[0].CallNumber != "C-4" || active[1].CallNumber != "C-1" {
		t.Errorf("order = %s, %s", active[0].CallNumber, active[1].CallNumber)
	}
}

func TestOpenHistoryEntry_NoneIsNil(t *testing.T) {
	s, db := newTestStore(t)
	db.Create(&models.Vehicle{CallNumber: "C-5", Status: "initial_hold", ImpoundedAt: time.Now()})

	entry, err := s.OpenHistoryEntry(context.Background(), "C-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil", entry)
	}
}

func TestAppendAudit_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.AppendAudit(context.Background(), "", "x", "", "u", ""); err == nil {
		t.Error("expected error for empty call number")
	}
	if err := s.AppendAudit(context.Background(), "C-1", "", "", "u", ""); err == nil {
		t.Error("expected error for empty action")
	}
}

func TestCommitTransition_Success(t *testing.T) {
	s, db := newTestStore(t)
	seedVehicle(t, db, "C-10", "initial_hold", time.Now().AddDate(0, 0, -8))

	ok, err := s.CommitTransition(context.Background(), "C-10",
		stage.InitialHold, stage.NoticeSent, "notice mailed", "user:jo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected commit")
	}

	v, err := s.GetVehicle(context.Background(), "C-10")
	if err != nil {
		t.Fatal(err)
	}
	if stage.FromStatus(v.Status) != stage.NoticeSent {
		t.Errorf("status = %q, want notice_sent", v.Status)
	}

	if n := countOpenEntries(t, db, "C-10"); n != 1 {
		t.Errorf("open entries = %d, want 1", n)
	}
	open, err := s.OpenHistoryEntry(context.Background(), "C-10")
	if err != nil || open == nil {
		t.Fatalf("open entry: %v, %v", open, err)
	}
	if open.Stage != string(stage.NoticeSent) {
		t.Errorf("open stage = %q, want notice_sent", open.Stage)
	}
	if open.Actor != "user:jo" {
		t.Errorf("actor = %q", open.Actor)
	}

	var audits int64
	db.Model(&models.AuditEntry{}).Where("call_number = ? AND action = ?", "C-10", "stage_transition").Count(&audits)
	if audits != 1 {
		t.Errorf("audit rows = %d, want 1", audits)
	}
}

func TestCommitTransition_ConflictReturnsFalse(t *testing.T) {
	s, db := newTestStore(t)
	seedVehicle(t, db, "C-11", "initial_hold", time.Now().AddDate(0, 0, -8))

	ok, err := s.CommitTransition(context.Background(), "C-11",
		stage.InitialHold, stage.NoticeSent, "", "sweep", "")
	if err != nil || !ok {
		t.Fatalf("first commit: ok=%t err=%v", ok, err)
	}

	// Second writer still thinks the vehicle is in initial_hold.
	ok, err = s.CommitTransition(context.Background(), "C-11",
		stage.InitialHold, stage.NoticeSent, "", "user:jo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second commit should report conflict")
	}

	// History is not corrupted: exactly one open entry.
	if n := countOpenEntries(t, db, "C-11"); n != 1 {
		t.Errorf("open entries = %d, want 1", n)
	}
}

func TestCommitTransition_MatchesRawAlias(t *testing.T) {
	s, db := newTestStore(t)
	// Imported record with a raw status alias rather than the canonical value.
	seedVehicle(t, db, "C-12", "In Impound", time.Now().AddDate(0, 0, -8))

	ok, err := s.CommitTransition(context.Background(), "C-12",
		stage.InitialHold, stage.NoticeSent, "", "sweep", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("aliased status should still commit")
	}
	v, _ := s.GetVehicle(context.Background(), "C-12")
	if v.Status != string(stage.NoticeSent) {
		t.Errorf("status = %q, want canonical notice_sent", v.Status)
	}
}

func TestMarkNoticeSent_Idempotent(t *testing.T) {
	s, db := newTestStore(t)
	seedVehicle(t, db, "C-13", "initial_hold", time.Now().AddDate(0, 0, -8))

	first := time.Now().Add(-time.Hour)
	if err := s.MarkNoticeSent(context.Background(), "C-13", first); err != nil {
		t.Fatal(err)
	}
	// A second stamp must not overwrite the original.
	if err := s.MarkNoticeSent(context.Background(), "C-13", time.Now()); err != nil {
		t.Fatal(err)
	}

	v, _ := s.GetVehicle(context.Background(), "C-13")
	if v.NoticeSentAt == nil {
		t.Fatal("notice_sent_at not set")
	}
	if v.NoticeSentAt.Sub(first).Abs() > time.Second {
		t.Errorf("notice_sent_at = %v, want %v", v.NoticeSentAt, first)
	}
}

func TestPurgeClosedHistory_KeepsOpenEntries(t *testing.T) {
	s, db := newTestStore(t)
	old := time.Now().AddDate(0, 0, -120)
	seedVehicle(t, db, "C-14", "notice_sent", old)

	exited := old.AddDate(0, 0, 1)
	db.Create(&models.StageHistoryEntry{
		CallNumber: "C-14", Stage: "initial_hold", EnteredAt: old, ExitedAt: &exited,
	})

	n, err := s.PurgeClosedHistory(context.Background(), time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if open := countOpenEntries(t, db, "C-14"); open != 1 {
		t.Errorf("open entries = %d, want 1 (purge must never touch open entries)", open)
	}
}

func TestPurgeNotifications_KeepsPending(t *testing.T) {
	s, db := newTestStore(t)
	old := time.Now().AddDate(0, 0, -120)
	db.Create(&models.NotificationRecord{CallNumber: "C-15", Type: "seven_day_notice", Status: models.NotifySent, QueuedAt: old})
	db.Create(&models.NotificationRecord{CallNumber: "C-15", Type: "overdue_escalation", Status: models.NotifyPending, QueuedAt: old})

	n, err := s.PurgeNotifications(context.Background(), time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	var pending int64
	db.Model(&models.NotificationRecord{}).Where("status = ?", models.NotifyPending).Count(&pending)
	if pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}
}
