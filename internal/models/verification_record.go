package models

import "time"

const VerificationStateVerified = "verified"

// VerificationRecord is written once per product when a control batch is committed.
// A batch with any verified row is closed.
type VerificationRecord struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	TenantID         uint    `gorm:"index:idx_verif_tenant_batch;not null" json:"tenant_id"`
	ControlBatchID   string  `gorm:"size:64;index:idx_verif_tenant_batch;not null" json:"control_batch_id"`
	ProductCode      string  `gorm:"size:100;not null" json:"product_code"`
	Description      string  `gorm:"size:255" json:"description"`
	SystemQuantity   int     `gorm:"not null" json:"system_quantity"`
	CountedQuantity  int     `gorm:"not null" json:"counted_quantity"`
	VerifiedQuantity int     `gorm:"not null" json:"verified_quantity"`
	Variance         int     `gorm:"not null" json:"variance"`
	InMasterCatalog  bool    `gorm:"not null" json:"in_master_catalog"`
	Forced           bool    `gorm:"not null;default:false" json:"forced"`
	Counted          bool    `gorm:"not null;default:false" json:"counted"`
	Area             *string `gorm:"size:100" json:"area"`
	Location         *string `gorm:"size:100" json:"location"`

	VerifierID                  uint      `gorm:"index;not null" json:"verifier_id"`
	VerifierName                string    `gorm:"size:100" json:"verifier_name"`
	VerificationDurationSeconds int       `gorm:"not null;default:0" json:"verification_duration_seconds"`
	CommittedAt                 time.Time `gorm:"index" json:"committed_at"`
	State                       string    `gorm:"size:20;index;not null" json:"state"`
}
