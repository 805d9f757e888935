package models

import "time"

// FreightCharge is the charge breakdown for one draft. Total is recomputed
// from its parts on every write, never authored independently.
type FreightCharge struct {
	DraftID       string  `gorm:"column:draft_id;primaryKey;type:varchar(50)"`
	Base          float64 `gorm:"column:base;type:decimal(12,2);not null;default:0"`
	FuelSurcharge float64 `gorm:"column:fuel_surcharge;type:decimal(12,2);not null;default:0"`
	Accessorials  float64 `gorm:"column:accessorials;type:decimal(12,2);not null;default:0"`
	Total         float64 `gorm:"column:total;type:decimal(12,2);not null;default:0"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Recompute refreshes the derived total.
func (c *FreightCharge) Recompute() {
	c.Total = c.Base + c.FuelSurcharge + c.Accessorials
}
