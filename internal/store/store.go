// Package store is the narrow adapter between the workflow engine and the
// record store: vehicle reads, stage-history writes, and the audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/towops/impound/internal/models"
	"github.com/towops/impound/internal/stage"
	"gorm.io/gorm"
)

// terminalStatuses are raw status values excluded from active sweeps. Raw
// statuses that don't map to a stage stay active (the safe direction: an
// unplaceable vehicle is treated as still held, never as done).
var terminalStatuses = []string{"disposed", "released", "released_to_owner"}

// Store wraps a GORM connection with the adapter operations the engine needs.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open GORM connection.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for collaborators that share it.
func (s *Store) DB() *gorm.DB { return s.db }

// GetVehicle returns the vehicle with the given call number.
func (s *Store) GetVehicle(ctx context.Context, callNumber string) (*models.Vehicle, error) {
	if callNumber == "" {
		return nil, fmt.Errorf("store: callNumber is required")
	}
	var v models.Vehicle
	err := s.db.WithContext(ctx).Where("call_number = ?", callNumber).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: vehicle %s not found: %w", callNumber, err)
		}
		return nil, fmt.Errorf("store: get vehicle %s: %w", callNumber, err)
	}
	return &v, nil
}

// ActiveVehicles returns all vehicles not yet in a terminal stage, ordered by
// intake date so the oldest holds are processed first.
func (s *Store) ActiveVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses).
		Where("released_at IS NULL").
		Order("impounded_at ASC").
		Find(&vehicles).Error
	if err != nil {
		return nil, fmt.Errorf("store: active vehicles: %w", err)
	}
	return vehicles, nil
}

// OpenHistoryEntry returns the vehicle's open stage-history entry, or nil
// when none exists (e.g. freshly migrated data).
func (s *Store) OpenHistoryEntry(ctx context.Context, callNumber string) (*models.StageHistoryEntry, error) {
	if callNumber == "" {
		return nil, fmt.Errorf("store: callNumber is required")
	}
	var entry models.StageHistoryEntry
	err := s.db.WithContext(ctx).
		Where("call_number = ? AND exited_at IS NULL", callNumber).
		Order("entered_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open history entry %s: %w", callNumber, err)
	}
	return &entry, nil
}

// History returns all stage-history entries for a vehicle, newest first.
func (s *Store) History(ctx context.Context, callNumber string) ([]models.StageHistoryEntry, error) {
	var entries []models.StageHistoryEntry
	err := s.db.WithContext(ctx).
		Where("call_number = ?", callNumber).
		Order("entered_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", callNumber, err)
	}
	return entries, nil
}

// AppendAudit writes one audit-trail row. Never silent: callers must abort
// the transition they were part of when this fails.
func (s *Store) AppendAudit(ctx context.Context, callNumber, action, note, actor, sweepID string) error {
	return appendAudit(s.db.WithContext(ctx), callNumber, action, note, actor, sweepID)
}

func appendAudit(db *gorm.DB, callNumber, action, note, actor, sweepID string) error {
	if callNumber == "" {
		return fmt.Errorf("store: callNumber is required")
	}
	if action == "" {
		return fmt.Errorf("store: action is required")
	}
	entry := models.AuditEntry{
		CallNumber: callNumber,
		Action:     action,
		Note:       note,
		Actor:      actor,
		SweepID:    sweepID,
		CreatedAt:  time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("store: append audit for %s: %w", callNumber, err)
	}
	return nil
}

// CommitTransition atomically moves a vehicle from one stage to another:
// conditional status update, close of the open history entry, creation of
// the new entry, and the audit row, all in one transaction. Returns
// (false, nil) when a concurrent writer already moved the vehicle out of
// `from` (optimistic conflict); the caller should re-read and recompute.
func (s *Store) CommitTransition(ctx context.Context, callNumber string, from, to stage.Stage, note, actor, sweepID string) (bool, error) {
	if callNumber == "" {
		return false, fmt.Errorf("store: callNumber is required")
	}

	committed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v models.Vehicle
		if err := tx.Where("call_number = ?", callNumber).First(&v).Error; err != nil {
			return fmt.Errorf("store: load vehicle %s: %w", callNumber, err)
		}
		if stage.FromStatus(v.Status) != from {
			// Already moved by a concurrent actor.
			return nil
		}

		now := time.Now()

		// Conditional write on the exact raw status we just read. Zero rows
		// affected means another writer got there between read and update.
		result := tx.Model(&models.Vehicle{}).
			Where("call_number = ? AND status = ?", callNumber, v.Status).
			Update("status", to.String())
		if result.Error != nil {
			return fmt.Errorf("store: update stage for %s: %w", callNumber, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&models.StageHistoryEntry{}).
			Where("call_number = ? AND exited_at IS NULL", callNumber).
			Update("exited_at", now).Error; err != nil {
			return fmt.Errorf("store: close history entry for %s: %w", callNumber, err)
		}

		entry := models.StageHistoryEntry{
			CallNumber: callNumber,
			Stage:      to.String(),
			EnteredAt:  now,
			Note:       note,
			Actor:      actor,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("store: open history entry for %s: %w", callNumber, err)
		}

		auditNote := fmt.Sprintf("%s -> %s", from, to)
		if note != "" {
			auditNote += ": " + note
		}
		if err := appendAudit(tx, callNumber, "stage_transition", auditNote, actor, sweepID); err != nil {
			return err
		}

		committed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

// MarkNoticeSent stamps the vehicle's notice-sent timestamp if not already set.
func (s *Store) MarkNoticeSent(ctx context.Context, callNumber string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Vehicle{}).
		Where("call_number = ? AND notice_sent_at IS NULL", callNumber).
		Update("notice_sent_at", at)
	if result.Error != nil {
		return fmt.Errorf("store: mark notice sent for %s: %w", callNumber, result.Error)
	}
	return nil
}

// PurgeClosedHistory deletes closed stage-history entries that exited before
// cutoff. Open entries are never touched.
func (s *Store) PurgeClosedHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("exited_at IS NOT NULL AND exited_at < ?", cutoff).
		Delete(&models.StageHistoryEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: purge closed history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeNotifications deletes sent and permanently-failed notification records
// queued before cutoff. Pending records are never touched.
func (s *Store) PurgeNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND queued_at < ?", []string{models.NotifySent, models.NotifyFailed}, cutoff).
		Delete(&models.NotificationRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: purge notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
