package models

import "time"

const ScanStatusPending = "pending"

// ScanRecord is one synced row of the server scan table. Ingestion is append-only,
// a retried sync may leave duplicate rows for the same product and location.
type ScanRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TenantID       uint       `gorm:"index:idx_scan_tenant_batch;not null" json:"tenant_id"`
	ControlBatchID string     `gorm:"size:64;index:idx_scan_tenant_batch;not null" json:"control_batch_id"`
	ProductCode    string     `gorm:"size:100;index;not null" json:"product_code"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	Area           *string    `gorm:"size:100" json:"area"`
	Location       *string    `gorm:"size:100" json:"location"`
	CounterID      uint       `gorm:"index" json:"counter_id"`
	CounterName    string     `gorm:"size:100" json:"counter_name"`
	ScannedAt      time.Time  `gorm:"index" json:"scanned_at"`
	ScanStartedAt  *time.Time `json:"scan_started_at"`
	ScanEndedAt    *time.Time `json:"scan_ended_at"`
	IsRecount      bool       `gorm:"not null;default:false" json:"is_recount"`
	Status         string     `gorm:"size:20;not null;default:pending" json:"status"`
	SyncedAt       time.Time  `json:"synced_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
