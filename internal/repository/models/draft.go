package models

import (
	"time"

	"gorm.io/gorm"
)

// Draft represents the mutable, collaboratively edited BoL record. It is
// the source of truth until activation; afterwards it is a read-mostly
// mirror of the immutable chain.
type Draft struct {
	ID     string `gorm:"column:draft_id;primaryKey;type:varchar(50)"`
	Status string `gorm:"column:status;type:varchar(20);not null;default:'pending'"`

	ShipperID   string `gorm:"column:shipper_id;type:varchar(50);index;not null"`
	Shipper     *Party `gorm:"foreignKey:ShipperID"`
	ConsigneeID string `gorm:"column:consignee_id;type:varchar(50);index;not null"`
	Consignee   *Party `gorm:"foreignKey:ConsigneeID"`
	CarrierID   string `gorm:"column:carrier_id;type:varchar(50);index;not null"`
	Carrier     *Party `gorm:"foreignKey:CarrierID"`
	BrokerID    *string `gorm:"column:broker_id;type:varchar(50);index"`
	Broker      *Party  `gorm:"foreignKey:BrokerID"`

	PickupDate   time.Time `gorm:"column:pickup_date"`
	DeliveryDate time.Time `gorm:"column:delivery_date"`

	// Derived from cargo lines, never authored directly.
	TotalPieces int     `gorm:"column:total_pieces;not null;default:0"`
	TotalWeight float64 `gorm:"column:total_weight;type:decimal(12,2);not null;default:0"`
	TotalValue  float64 `gorm:"column:total_value;type:decimal(14,2);not null;default:0"`

	HazmatFlag   bool   `gorm:"column:hazmat_flag;default:false"`
	HazmatClass  string `gorm:"column:hazmat_class;type:varchar(20)"`
	HazmatUNCode string `gorm:"column:hazmat_un_code;type:varchar(20)"`

	ShipperApproved   bool       `gorm:"column:shipper_approved;default:false"`
	ShipperApprovedAt *time.Time `gorm:"column:shipper_approved_at"`
	CarrierApproved   bool       `gorm:"column:carrier_approved;default:false"`
	CarrierApprovedAt *time.Time `gorm:"column:carrier_approved_at"`

	// Optimistic concurrency counter, bumped on every content mutation.
	Version int64 `gorm:"column:version;not null;default:1"`

	// Set while an activation is in flight to block further edits.
	Frozen bool `gorm:"column:frozen;default:false"`

	// Link to the immutable record once activated.
	RecordID *string `gorm:"column:record_id;type:varchar(50);uniqueIndex"`

	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`

	// Relationships
	CargoLines []CargoLine    `gorm:"foreignKey:DraftID"`
	Charge     *FreightCharge `gorm:"foreignKey:DraftID"`
	History    []HistoryEntry `gorm:"foreignKey:DraftID"`
}

// QuorumReached reports whether both parties have approved the current
// content.
func (d *Draft) QuorumReached() bool {
	return d.ShipperApproved && d.CarrierApproved
}

// InvalidateApprovals clears both approval flags and their timestamps,
// reporting whether any flag was set. Called on every content mutation so
// an approval can never stand against content its party has not seen.
func (d *Draft) InvalidateApprovals() bool {
	if !d.ShipperApproved && !d.CarrierApproved {
		return false
	}
	d.ShipperApproved = false
	d.ShipperApprovedAt = nil
	d.CarrierApproved = false
	d.CarrierApprovedAt = nil
	return true
}

// RecomputeTotals re-derives the piece count, weight and value from the
// given cargo lines.
func (d *Draft) RecomputeTotals(lines []CargoLine) {
	d.TotalPieces = 0
	d.TotalWeight = 0
	d.TotalValue = 0
	for _, l := range lines {
		d.TotalPieces += l.Quantity
		d.TotalWeight += l.WeightLb
		d.TotalValue += l.ValueUSD
	}
}
