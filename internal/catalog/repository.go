package catalog

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"inventario-backend/internal/models"
	"inventario-backend/internal/retry"
)

const (
	DefaultLookupChunk = 1000
	DefaultDescription = "NO DESCRIPTION"
	importBatchSize    = 500
)

// Repository reads and writes the master catalog of every tenant.
type Repository struct {
	db          *gorm.DB
	lookupChunk int
}

func NewRepository(db *gorm.DB, lookupChunk int) *Repository {
	if lookupChunk <= 0 {
		lookupChunk = DefaultLookupChunk
	}
	return &Repository{db: db, lookupChunk: lookupChunk}
}

// LookupProducts loads the master rows of codes for a tenant with IN queries,
// one per chunk of distinct codes. When a code appears more than once in the
// catalog the newest row wins.
func (r *Repository) LookupProducts(ctx context.Context, tenantID uint, codes []string) (map[string]models.MasterProduct, error) {
	distinct := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		distinct = append(distinct, c)
	}

	out := make(map[string]models.MasterProduct, len(distinct))
	for _, chunk := range retry.Chunk(distinct, r.lookupChunk) {
		var rows []models.MasterProduct
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND product_code IN ?", tenantID, chunk).
			Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ProductCode] = row
		}
	}
	return out, nil
}

// ListPage returns one page (1-based) of a tenant catalog ordered by id, and
// the total row count.
func (r *Repository) ListPage(ctx context.Context, tenantID uint, page, pageSize int) ([]models.MasterProduct, int64, error) {
	if page < 1 {
		page = 1
	}
	var total int64
	err := r.db.WithContext(ctx).Model(&models.MasterProduct{}).Where("tenant_id = ?", tenantID).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var rows []models.MasterProduct
	err = r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ImportItem is one spreadsheet row of a bulk catalog import.
type ImportItem struct {
	ProductCode string  `json:"product_code"`
	Barcode     *string `json:"barcode"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Unit        string  `json:"unit"`
	Area        *string `json:"area"`
	Location    *string `json:"location"`
}

// Import appends items to the tenant catalog. Rows without a product code are
// skipped and counted.
func (r *Repository) Import(ctx context.Context, tenantID uint, items []ImportItem) (inserted, skipped int, err error) {
	rows := make([]models.MasterProduct, 0, len(items))
	for _, it := range items {
		code := strings.TrimSpace(it.ProductCode)
		if code == "" {
			skipped++
			continue
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = DefaultDescription
		}
		unit := strings.TrimSpace(it.Unit)
		if unit == "" {
			unit = "UN"
		}
		rows = append(rows, models.MasterProduct{
			TenantID:    tenantID,
			ProductCode: code,
			Barcode:     blankToNil(it.Barcode),
			Description: desc,
			Quantity:    it.Quantity,
			Unit:        unit,
			Area:        blankToNil(it.Area),
			Location:    blankToNil(it.Location),
		})
	}
	if len(rows) == 0 {
		return 0, skipped, nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&rows, importBatchSize).Error; err != nil {
		return 0, skipped, err
	}
	return len(rows), skipped, nil
}

// DeleteAll wipes a tenant catalog.
func (r *Repository) DeleteAll(ctx context.Context, tenantID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.MasterProduct{})
	return res.RowsAffected, res.Error
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
