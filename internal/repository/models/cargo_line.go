package models

import "time"

// CargoLine is a single freight line item owned by exactly one draft.
type CargoLine struct {
	ID          string  `gorm:"column:cargo_line_id;primaryKey;type:varchar(50)"`
	DraftID     string  `gorm:"column:draft_id;type:varchar(50);index;not null"`
	Draft       *Draft  `gorm:"foreignKey:DraftID"`
	LineNumber  int     `gorm:"column:line_number;not null"`
	Description string  `gorm:"column:description;type:varchar(255);not null"`
	Quantity    int     `gorm:"column:qty;not null"`
	WeightLb    float64 `gorm:"column:weight_lb;type:decimal(12,2);not null"`
	ValueUSD    float64 `gorm:"column:value_usd;type:decimal(14,2);not null"`
	Hazmat      bool    `gorm:"column:hazmat;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
