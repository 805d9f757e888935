package models

import "time"

// VersionEntry is one node in the append-only, hash-linked history of an
// activated record. Sequence numbers are contiguous from 1 and the chain is
// strictly linear: PrevHash of entry N equals NewHash of entry N-1.
type VersionEntry struct {
	RecordID string  `gorm:"column:record_id;primaryKey;type:varchar(50)"`
	Record   *Record `gorm:"foreignKey:RecordID"`
	Sequence int64   `gorm:"column:sequence;primaryKey"`

	PrevHash *string `gorm:"column:prev_hash;type:varchar(64)"` // null for sequence 1
	NewHash  string  `gorm:"column:new_hash;type:varchar(64);not null"`

	// Content hash of the rendered document, when a renderer is configured.
	RenderedHash *string `gorm:"column:rendered_hash;type:varchar(64)"`

	Status     string `gorm:"column:status;type:varchar(20);not null"`
	ActorID    string `gorm:"column:actor_id;type:varchar(50);not null"`
	Notes      string `gorm:"column:notes;type:text"`
	LedgerTxID string `gorm:"column:ledger_tx_id;type:varchar(66);not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
