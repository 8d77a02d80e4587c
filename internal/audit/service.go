package audit

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"inventario-backend/internal/models"
)

type LogOptions struct {
	TenantID    *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityRef   string
	Action      models.AuditAction
	Description string
	Data        any
}

// WriteLog appends one audit row. Callers log a failure and carry on.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb needs a JSON null rather than an empty string
	data := "null"
	if opts.Data != nil {
		if b, err := json.Marshal(opts.Data); err == nil {
			data = string(b)
		}
	}

	entry := models.AuditLog{
		TenantID:    opts.TenantID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityRef:   opts.EntityRef,
		Action:      opts.Action,
		Description: opts.Description,
		Data:        data,
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit log not saved: %w", err)
	}
	return nil
}
