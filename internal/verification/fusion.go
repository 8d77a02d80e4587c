package verification

import (
	"strings"

	"inventario-backend/internal/models"
)

// NotInCatalog is the description of a counted product the master catalog
// does not know.
const NotInCatalog = "NOT IN CATALOG"

// FusionRecord is the reconciled view of one product of a control batch.
type FusionRecord struct {
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

// CountedProduct is the sum of every scan of one product in a batch.
type CountedProduct struct {
	ProductCode string
	Counted     int
	Area        string
	Location    string
}

// Aggregate sums scans by product code. Scans must come in ascending id order:
// for area and location the last non-empty value wins. Products keep the order
// of their first scan.
func Aggregate(scans []models.ScanRecord) []CountedProduct {
	index := make(map[string]int)
	var out []CountedProduct
	for _, s := range scans {
		code := strings.TrimSpace(s.ProductCode)
		if code == "" {
			continue
		}
		i, ok := index[code]
		if !ok {
			i = len(out)
			index[code] = i
			out = append(out, CountedProduct{ProductCode: code})
		}
		p := &out[i]
		p.Counted += s.Quantity
		if v := deref(s.Area); v != "" {
			p.Area = v
		}
		if v := deref(s.Location); v != "" {
			p.Location = v
		}
	}
	return out
}

// Fuse joins counted products with their master rows. Products missing from
// master stay in the result, flagged and with a system quantity of zero.
// The verified quantity starts at the counted quantity.
func Fuse(controlBatchID string, counted []CountedProduct, master map[string]models.MasterProduct) []FusionRecord {
	out := make([]FusionRecord, 0, len(counted))
	for _, p := range counted {
		rec := FusionRecord{
			ControlBatchID:   controlBatchID,
			ProductCode:      p.ProductCode,
			Description:      NotInCatalog,
			CountedQuantity:  p.Counted,
			VerifiedQuantity: p.Counted,
			Area:             p.Area,
			Location:         p.Location,
		}
		if m, ok := master[p.ProductCode]; ok {
			rec.InMasterCatalog = true
			rec.Description = m.Description
			rec.SystemQuantity = m.Quantity
			if rec.Area == "" {
				rec.Area = deref(m.Area)
			}
			if rec.Location == "" {
				rec.Location = deref(m.Location)
			}
		}
		rec.Variance = rec.VerifiedQuantity - rec.SystemQuantity
		out = append(out, rec)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
