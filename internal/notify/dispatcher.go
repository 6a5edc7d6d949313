// Package notify maintains the durable queue of outbound legal notices and
// drives delivery attempts with bounded retry.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/towops/impound/internal/models"
	"gorm.io/gorm"
)

// Notification type tags.
const (
	TypeSevenDayNotice    = "seven_day_notice"
	TypeOverdueEscalation = "overdue_escalation"
)

// deliverMaxElapsed bounds the in-flush retry window for a single record.
// Anything still failing after this stays pending for the next flush.
const deliverMaxElapsed = 15 * time.Second

// Dispatcher owns the notification queue.
type Dispatcher struct {
	db          *gorm.DB
	transport   Transport
	maxAttempts int
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	DB          *gorm.DB
	Transport   Transport // defaults to LogTransport
	MaxAttempts int       // defaults to 5
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: db is required")
	}
	tr := opts.Transport
	if tr == nil {
		tr = LogTransport{}
	}
	max := opts.MaxAttempts
	if max <= 0 {
		max = 5
	}
	return &Dispatcher{db: opts.DB, transport: tr, maxAttempts: max}, nil
}

// Enqueue queues one notification. Delivery is at-least-once with dedup: an
// existing pending record for the same vehicle and type is returned instead
// of creating a duplicate.
func (d *Dispatcher) Enqueue(ctx context.Context, callNumber, typ, recipient string) (*models.NotificationRecord, error) {
	if callNumber == "" {
		return nil, fmt.Errorf("notify: callNumber is required")
	}
	if typ == "" {
		return nil, fmt.Errorf("notify: type is required")
	}

	var existing models.NotificationRecord
	err := d.db.WithContext(ctx).
		Where("call_number = ? AND type = ? AND status = ?", callNumber, typ, models.NotifyPending).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("notify: enqueue lookup %s/%s: %w", callNumber, typ, err)
	}

	rec := models.NotificationRecord{
		CallNumber: callNumber,
		Type:       typ,
		Recipient:  recipient,
		Status:     models.NotifyPending,
		QueuedAt:   time.Now(),
	}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("notify: enqueue %s/%s: %w", callNumber, typ, err)
	}
	return &rec, nil
}

// Pending returns queued records awaiting delivery, oldest first.
func (d *Dispatcher) Pending(ctx context.Context) ([]models.NotificationRecord, error) {
	var recs []models.NotificationRecord
	err := d.db.WithContext(ctx).
		Where("status = ?", models.NotifyPending).
		Order("queued_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("notify: pending: %w", err)
	}
	return recs, nil
}

// FlushResult summarizes one flush pass.
type FlushResult struct {
	Sent      int
	Failed    int
	Remaining int
}

// FlushPending attempts delivery for every queued record. A transient failure
// leaves the record pending for the next flush; once a record exhausts the
// max attempt count it is marked failed permanently and surfaced via the
// audit trail for a human to pick up.
func (d *Dispatcher) FlushPending(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	recs, err := d.Pending(ctx)
	if err != nil {
		return res, err
	}

	for i := range recs {
		rec := &recs[i]

		if ctx.Err() != nil {
			res.Remaining = len(recs) - i
			return res, nil
		}

		if err := d.deliverWithRetry(ctx, rec); err != nil {
			log.Printf("notify: delivery failed for %s/%s (attempt %d): %v",
				rec.CallNumber, rec.Type, rec.Attempts+1, err)
			d.recordFailure(ctx, rec, err)
			if rec.Status == models.NotifyFailed {
				res.Failed++
			} else {
				res.Remaining++
			}
			continue
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":   models.NotifySent,
			"sent_at":  now,
			"attempts": rec.Attempts + 1,
		}
		if err := d.db.WithContext(ctx).Model(&models.NotificationRecord{}).
			Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
			return res, fmt.Errorf("notify: mark sent %d: %w", rec.ID, err)
		}
		res.Sent++
	}

	return res, nil
}

// deliverWithRetry wraps one delivery in a short exponential backoff so brief
// transport hiccups don't burn a whole flush cycle.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, rec *models.NotificationRecord) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = deliverMaxElapsed
	return backoff.Retry(func() error {
		return d.transport.Deliver(ctx, rec)
	}, backoff.WithContext(bo, ctx))
}

// recordFailure bumps the attempt counter and, once the cap is hit, marks the
// record permanently failed and writes an audit row addressed to a human.
func (d *Dispatcher) recordFailure(ctx context.Context, rec *models.NotificationRecord, deliverErr error) {
	rec.Attempts++
	updates := map[string]interface{}{
		"attempts":   rec.Attempts,
		"last_error": deliverErr.Error(),
	}
	if rec.Attempts >= d.maxAttempts {
		rec.Status = models.NotifyFailed
		updates["status"] = models.NotifyFailed

		audit := models.AuditEntry{
			CallNumber: rec.CallNumber,
			Action:     "notification_failed",
			Note: fmt.Sprintf("%s to %s failed permanently after %d attempts: %v",
				rec.Type, rec.Recipient, rec.Attempts, deliverErr),
			Actor:     "dispatcher",
			CreatedAt: time.Now(),
		}
		if err := d.db.WithContext(ctx).Create(&audit).Error; err != nil {
			log.Printf("notify: audit for failed record %d: %v", rec.ID, err)
		}
	}
	if err := d.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		log.Printf("notify: record failure for %d: %v", rec.ID, err)
	}
}

// List returns notification records filtered by status ("" for all), newest first.
func (d *Dispatcher) List(ctx context.Context, status string) ([]models.NotificationRecord, error) {
	q := d.db.WithContext(ctx).Model(&models.NotificationRecord{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var recs []models.NotificationRecord
	if err := q.Order("queued_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	return recs, nil
}
