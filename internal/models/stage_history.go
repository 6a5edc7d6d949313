package models

import "time"

// StageHistoryEntry records one stay in a custody stage. Append-only: an
// entry is created when a vehicle enters a stage and closed (ExitedAt set)
// when it leaves. At most one entry per vehicle has a null ExitedAt.
type StageHistoryEntry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CallNumber string `gorm:"size:32;index:idx_call_open"`
	Stage      string `gorm:"size:32"`
	EnteredAt  time.Time
	ExitedAt   *time.Time `gorm:"index:idx_call_open"`
	Note       string     `gorm:"type:text"`
	Actor      string     `gorm:"size:64"`
}

// AuditEntry is an append-only trail of every transition and automated
// action. SweepID groups entries written by one automated sweep run.
type AuditEntry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CallNumber string `gorm:"size:32;index"`
	Action     string `gorm:"size:64"`
	Note       string `gorm:"type:text"`
	Actor      string `gorm:"size:64"`
	SweepID    string `gorm:"size:36;index"`
	CreatedAt  time.Time
}
