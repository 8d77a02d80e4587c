package models

import "time"

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionDelete AuditAction = "delete"
	AuditActionImport AuditAction = "import"
	AuditActionCommit AuditAction = "commit"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TenantID *uint `gorm:"index" json:"tenant_id"`

	UserID   uint   `json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalized

	// e.g. "scan_batch", "verification", "catalog"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityRef  string `gorm:"size:100;index" json:"entity_ref"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	Data string `gorm:"type:jsonb" json:"data"`
}
