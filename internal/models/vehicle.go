package models

import "time"

// Vehicle is the engine's projection of an impounded vehicle record. The
// record store owns most fields; the engine writes only Status (via validated
// transitions) and NoticeSentAt.
type Vehicle struct {
	CallNumber   string `gorm:"primaryKey;size:32"`
	Status       string `gorm:"size:32;default:initial_hold;index"`
	ImpoundedAt  time.Time
	OwnerKnown   bool   `gorm:"default:false"`
	OwnerName    string `gorm:"size:128"`
	OwnerAddress string `gorm:"size:256"`
	Make         string `gorm:"size:64"`
	Model        string `gorm:"size:64"`
	VIN          string `gorm:"size:32;index"`
	Plate        string `gorm:"size:16"`
	Jurisdiction string `gorm:"size:64"`
	NoticeSentAt *time.Time
	PickupAt     *time.Time
	ReleasedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	History []StageHistoryEntry `gorm:"foreignKey:CallNumber"`
}
