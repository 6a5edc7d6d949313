package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/towops/impound/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openNotifyTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.NotificationRecord{}, &models.AuditEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// stubTransport counts deliveries and fails while failures > 0. Failures are
// permanent so tests don't sit in the retry window.
type stubTransport struct {
	delivered []string
	failures  int
}

func (s *stubTransport) Deliver(ctx context.Context, rec *models.NotificationRecord) error {
	if s.failures > 0 {
		s.failures--
		return backoff.Permanent(errors.New("gateway unreachable"))
	}
	s.delivered = append(s.delivered, rec.CallNumber+"/"+rec.Type)
	return nil
}

func newTestDispatcher(t *testing.T, tr Transport, maxAttempts int) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db := openNotifyTestDB(t)
	d, err := New(Opts{DB: db, Transport: tr, MaxAttempts: maxAttempts})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, db
}

func TestNew_RequiresDB(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Error("expected error for nil db")
	}
}

func TestEnqueue_Validation(t *testing.T) {
	d, _ := newTestDispatcher(t, &stubTransport{}, 3)
	if _, err := d.Enqueue(context.Background(), "", TypeSevenDayNotice, "x"); err == nil {
		t.Error("expected error for empty call number")
	}
	if _, err := d.Enqueue(context.Background(), "C-1", "", "x"); err == nil {
		t.Error("expected error for empty type")
	}
}

func TestEnqueue_DedupsPending(t *testing.T) {
	d, db := newTestDispatcher(t, &stubTransport{}, 3)

	first, err := d.Enqueue(context.Background(), "C-1", TypeSevenDayNotice, "J. Marsh")
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Enqueue(context.Background(), "C-1", TypeSevenDayNotice, "J. Marsh")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("dedup returned a new record: %d != %d", first.ID, second.ID)
	}

	var n int64
	db.Model(&models.NotificationRecord{}).Count(&n)
	if n != 1 {
		t.Errorf("records = %d, want 1", n)
	}

	// A different type for the same vehicle is a separate record.
	if _, err := d.Enqueue(context.Background(), "C-1", TypeOverdueEscalation, "operations"); err != nil {
		t.Fatal(err)
	}
	db.Model(&models.NotificationRecord{}).Count(&n)
	if n != 2 {
		t.Errorf("records = %d, want 2", n)
	}
}

func TestFlushPending_DeliversAndMarksSent(t *testing.T) {
	tr := &stubTransport{}
	d, db := newTestDispatcher(t, tr, 3)
	d.Enqueue(context.Background(), "C-2", TypeSevenDayNotice, "J. Marsh")
	d.Enqueue(context.Background(), "C-3", TypeOverdueEscalation, "operations")

	res, err := d.FlushPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sent != 2 || res.Failed != 0 || res.Remaining != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(tr.delivered) != 2 {
		t.Errorf("delivered = %v", tr.delivered)
	}

	var recs []models.NotificationRecord
	db.Find(&recs)
	for _, rec := range recs {
		if rec.Status != models.NotifySent {
			t.Errorf("record %d status = %q, want sent", rec.ID, rec.Status)
		}
		if rec.SentAt == nil {
			t.Errorf("record %d has no sent_at", rec.ID)
		}
		if rec.Attempts != 1 {
			t.Errorf("record %d attempts = %d, want 1", rec.ID, rec.Attempts)
		}
	}
}

// A failed delivery stays pending with its error recorded, then succeeds on
// the next flush.
func TestFlushPending_FailureStaysPending(t *testing.T) {
	tr := &stubTransport{failures: 1}
	d, db := newTestDispatcher(t, tr, 3)
	d.Enqueue(context.Background(), "C-4", TypeSevenDayNotice, "J. Marsh")

	res, err := d.FlushPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 0 || res.Failed != 0 || res.Remaining != 1 {
		t.Errorf("result = %+v", res)
	}

	var rec models.NotificationRecord
	db.First(&rec)
	if rec.Status != models.NotifyPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", rec.Attempts)
	}
	if rec.LastError == "" {
		t.Error("last_error not recorded")
	}

	res, err = d.FlushPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 {
		t.Errorf("retry result = %+v", res)
	}
}

// Exhausting the attempt cap marks the record failed and writes an audit row.
func TestFlushPending_MaxAttemptsMarksFailed(t *testing.T) {
	tr := &stubTransport{failures: 10}
	d, db := newTestDispatcher(t, tr, 2)
	d.Enqueue(context.Background(), "C-5", TypeSevenDayNotice, "J. Marsh")

	for i := 0; i < 2; i++ {
		if _, err := d.FlushPending(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	var rec models.NotificationRecord
	db.First(&rec)
	if rec.Status != models.NotifyFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if rec.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", rec.Attempts)
	}

	var audits int64
	db.Model(&models.AuditEntry{}).
		Where("call_number = ? AND action = ?", "C-5", "notification_failed").Count(&audits)
	if audits != 1 {
		t.Errorf("audit rows = %d, want 1", audits)
	}

	// Failed records are out of the queue for good.
	res, err := d.FlushPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 0 || res.Remaining != 0 {
		t.Errorf("post-failure flush = %+v", res)
	}
}

func TestFlushPending_CancelledContext(t *testing.T) {
	d, _ := newTestDispatcher(t, &stubTransport{}, 3)
	d.Enqueue(context.Background(), "C-6", TypeSevenDayNotice, "J. Marsh")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.FlushPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 0 || res.Remaining != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestList_FiltersByStatus(t *testing.T) {
	d, db := newTestDispatcher(t, &stubTransport{}, 3)
	now := time.Now()
	db.Create(&models.NotificationRecord{CallNumber: "C-7", Type: TypeSevenDayNotice, Status: models.NotifySent, QueuedAt: now.Add(-time.Hour)})
	db.Create(&models.NotificationRecord{CallNumber: "C-8", Type: TypeSevenDayNotice, Status: models.NotifyPending, QueuedAt: now})

	all, err := d.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}
	// Newest first.
	if all[0].CallNumber != "C-8" {
		t.Errorf("first = %s, want C-8", all[0].CallNumber)
	}

	pending, err := d.List(context.Background(), models.NotifyPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].CallNumber != "C-8" {
		t.Errorf("pending = %+v", pending)
	}
}
