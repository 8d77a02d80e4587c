package models

import "time"

// SessionStats is the daily summary of one user in one role. It is a cache that is
// rebuilt from scan and verification rows, never edited directly.
type SessionStats struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex:idx_session_user_day_role;not null" json:"user_id"`
	Day           string    `gorm:"size:10;uniqueIndex:idx_session_user_day_role;not null" json:"day"`
	Role          UserRole  `gorm:"size:20;uniqueIndex:idx_session_user_day_role;not null" json:"role"`
	TenantID      *uint     `json:"tenant_id"`
	Pieces        int       `json:"pieces"`
	DistinctSKUs  int       `json:"distinct_skus"`
	ActiveSeconds int64     `json:"active_seconds"`
	Velocity      int       `json:"velocity"`
	Precision     float64   `json:"precision"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LifetimeStats is the all-time summary of one user across both roles.
type LifetimeStats struct {
	UserID          uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PiecesCounted   int       `json:"pieces_counted"`
	PiecesVerified  int       `json:"pieces_verified"`
	TotalPieces     int       `json:"total_pieces"`
	DistinctSKUs    int       `json:"distinct_skus"`
	DistinctTenants int       `json:"distinct_tenants"`
	Precision       float64   `json:"precision"`
	LifetimeHours   float64   `json:"lifetime_hours"`
	HoursEstimated  bool      `json:"hours_estimated"`
	AverageVelocity int       `json:"average_velocity"`
	UpdatedAt       time.Time `json:"updated_at"`
}
