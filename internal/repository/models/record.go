package models

import "time"

// Record is the immutable, ledger-anchored BoL created exactly once per
// draft at activation. No field besides the cached current status/sequence
// pointers is ever updated; all change flows through version entries.
type Record struct {
	ID        string `gorm:"column:record_id;primaryKey;type:varchar(50)"`
	BolNumber string `gorm:"column:bol_number;type:varchar(20);uniqueIndex;not null"`
	DraftID   string `gorm:"column:draft_id;type:varchar(50);uniqueIndex;not null"`

	// Cached pointers, corrected by reconcile when they diverge from the
	// ledger.
	CurrentStatus   string `gorm:"column:current_status;type:varchar(20);not null"`
	CurrentSequence int64  `gorm:"column:current_sequence;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Versions []VersionEntry `gorm:"foreignKey:RecordID"`
}
