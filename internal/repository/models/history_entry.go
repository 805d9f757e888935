package models

import "time"

// HistoryEntry is the relational audit log of draft-phase events:
// creation, approvals, approval invalidations, rejections and transitions.
// Rejections never touch the immutable chain, so this table is their only
// durable trace.
type HistoryEntry struct {
	ID       string `gorm:"column:history_id;primaryKey;type:varchar(50)"`
	DraftID  string `gorm:"column:draft_id;type:varchar(50);index;not null"`
	Draft    *Draft `gorm:"foreignKey:DraftID"`
	RecordID *string `gorm:"column:record_id;type:varchar(50);index"`

	Event      string `gorm:"column:event;type:varchar(50);not null"`
	FromStatus string `gorm:"column:from_status;type:varchar(20)"`
	ToStatus   string `gorm:"column:to_status;type:varchar(20)"`
	ActorID    string `gorm:"column:actor_id;type:varchar(50);index"`
	Category   string `gorm:"column:category;type:varchar(30)"`
	Reason     string `gorm:"column:reason;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
