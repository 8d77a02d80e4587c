package syncclient

import (
	"context"
	"fmt"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/retry"
)

const DefaultCatalogPageSize = 1000

type CatalogSource interface {
	CatalogPage(ctx context.Context, tenantID uint, page, pageSize int) ([]CatalogItem, error)
}

type CatalogStore interface {
	ReplaceCatalog(ctx context.Context, products []capture.CatalogProduct) (int, error)
}

// PullCatalog downloads the whole tenant catalog page by page and replaces the
// local copy. The local catalog is untouched when any page fails.
func PullCatalog(ctx context.Context, src CatalogSource, dst CatalogStore, tenantID uint, pageSize int, p retry.Policy) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultCatalogPageSize
	}

	items, err := retry.FetchChunks(ctx, p, pageSize, func(ctx context.Context, offset, limit int) ([]CatalogItem, error) {
		page, err := src.CatalogPage(ctx, tenantID, offset/limit+1, limit)
		if err != nil && !Retryable(err) {
			return nil, retry.Permanent(err)
		}
		return page, err
	})
	if err != nil {
		return 0, fmt.Errorf("catalog download stopped after %d products: %w", len(items), err)
	}

	products := make([]capture.CatalogProduct, 0, len(items))
	for _, it := range items {
		products = append(products, capture.CatalogProduct{
			ProductCode: it.ProductCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			Area:        deref(it.Area),
			Location:    deref(it.Location),
		})
	}
	return dst.ReplaceCatalog(ctx, products)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
