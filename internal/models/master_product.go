package models

import "time"

// MasterProduct is a row of the tenant's master inventory (the system quantity).
type MasterProduct struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"index:idx_master_tenant_code;not null" json:"tenant_id"`
	ProductCode string    `gorm:"size:100;index:idx_master_tenant_code;not null" json:"product_code"`
	Barcode     *string   `gorm:"size:100" json:"barcode"`
	Description string    `gorm:"size:255" json:"description"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	Unit        string    `gorm:"size:20;default:UN" json:"unit"`
	Area        *string   `gorm:"size:100" json:"area"`
	Location    *string   `gorm:"size:100" json:"location"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
