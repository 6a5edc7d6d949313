package models

import "time"

// Notification delivery statuses.
const (
	NotifyPending = "pending"
	NotifySent    = "sent"
	NotifyFailed  = "failed"
)

// NotificationRecord is one queued outbound notice. Rows are never updated
// destructively: retries increment Attempts, and terminal failure flips
// Status to failed so a human can pick it up.
type NotificationRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CallNumber string `gorm:"size:32;index"`
	Type       string `gorm:"size:64;index"`
	Recipient  string `gorm:"size:128"`
	Status     string `gorm:"size:16;default:pending;index"`
	Attempts   int    `gorm:"default:0"`
	QueuedAt   time.Time
	SentAt     *time.Time
	LastError  string `gorm:"type:text"`
}
