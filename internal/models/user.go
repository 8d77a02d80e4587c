package models

import "time"

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleCounter  UserRole = "counter"
	RoleVerifier UserRole = "verifier"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleCounter, RoleVerifier:
		return true
	}
	return false
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	TenantID     *uint
	Tenant       *Tenant
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
