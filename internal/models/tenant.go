package models

import "time"

// Tenant is the audited client whose master inventory is being counted.
type Tenant struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:150;not null;unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
