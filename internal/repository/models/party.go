package models

// Party represents a company participating in a BoL: shipper, consignee,
// carrier or broker.
type Party struct {
	ID          string `gorm:"column:party_id;primaryKey;type:varchar(50)"`
	Name        string `gorm:"column:name;type:varchar(100);not null"`
	Role        string `gorm:"column:role;type:varchar(20);not null"`
	ContactInfo string `gorm:"column:contact_info;type:varchar(255)"`
	Address     string `gorm:"column:address;type:varchar(255)"`
}
