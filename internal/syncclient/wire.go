package syncclient

import (
	"time"

	"inventario-backend/internal/capture"
)

// ScanPayload is one aggregated capture entry as sent to bulk ingestion.
type ScanPayload struct {
	ProductCode    string    `json:"product_code"`
	Quantity       int       `json:"quantity"`
	Area           string    `json:"area"`
	Location       string    `json:"location"`
	ControlBatchID string    `json:"control_batch_id"`
	ActorID        uint      `json:"actor_id"`
	ActorName      string    `json:"actor_name"`
	SessionStart   time.Time `json:"session_start"`
	SessionEnd     time.Time `json:"session_end"`
	TenantID       uint      `json:"tenant_id"`
}

type ingestRequest struct {
	Items []ScanPayload `json:"items"`
}

type ingestResponse struct {
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// CatalogItem is one master catalog row as served to devices.
type CatalogItem struct {
	ProductCode string  `json:"product_code"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Area        *string `json:"area"`
	Location    *string `json:"location"`
}

type catalogPage struct {
	Items    []CatalogItem `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int64         `json:"total"`
}

// FusionItem mirrors the reconciled record returned by the fusion read.
type FusionItem struct {
	ControlBatchID   string `json:"control_batch_id,omitempty"`
	ProductCode      string `json:"product_code"`
	Description      string `json:"description"`
	SystemQuantity   int    `json:"system_quantity"`
	CountedQuantity  int    `json:"counted_quantity"`
	VerifiedQuantity int    `json:"verified_quantity"`
	Variance         int    `json:"variance"`
	InMasterCatalog  bool   `json:"in_master_catalog"`
	Area             string `json:"area"`
	Location         string `json:"location"`
}

// FusionResponse is the fusion read of one control batch.
type FusionResponse struct {
	ControlBatchID string       `json:"control_batch_id"`
	Items          []FusionItem `json:"items"`
}

// CommitRequest is the verifier's final quantities for a control batch.
type CommitRequest struct {
	ControlBatchID  string       `json:"control_batch_id"`
	TenantID        uint         `json:"tenant_id"`
	VerifierID      uint         `json:"verifier_id"`
	VerifierName    string       `json:"verifier_name"`
	DurationSeconds int          `json:"duration_seconds"`
	Items           []FusionItem `json:"items"`
}

type commitResponse struct {
	Count int `json:"count"`
}

// Me is the identity behind the device token.
type Me struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID *uint  `json:"tenant_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// BuildPayloads turns the stored entries of a session into wire payloads.
// The interval runs from the end of the previous confirmed sync, or the
// session start, to syncedAt, so consecutive syncs never overlap.
func BuildPayloads(info capture.SessionInfo, entries []capture.Entry, syncedAt time.Time) []ScanPayload {
	start := info.StartedAt
	if info.LastSyncedAt.After(start) {
		start = info.LastSyncedAt
	}
	payloads := make([]ScanPayload, 0, len(entries))
	for _, e := range entries {
		area := e.Area
		if area == "" {
			area = info.Area
		}
		batch := e.ControlBatchID
		if batch == "" {
			batch = info.ControlBatchID
		}
		payloads = append(payloads, ScanPayload{
			ProductCode:    e.ProductCode,
			Quantity:       e.Quantity,
			Area:           area,
			Location:       e.Location,
			ControlBatchID: batch,
			ActorID:        info.Actor.ID,
			ActorName:      info.Actor.Name,
			SessionStart:   start,
			SessionEnd:     syncedAt,
			TenantID:       info.TenantID,
		})
	}
	return payloads
}
