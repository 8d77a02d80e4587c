package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CatalogProduct is the offline copy of a master catalog row.
type CatalogProduct struct {
	ProductCode string
	Description string
	Quantity    int
	Area        string
	Location    string
}

// ReplaceCatalog swaps the local catalog for products. Duplicate codes keep the
// last occurrence.
func (s *Store) ReplaceCatalog(ctx context.Context, products []CatalogProduct) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_products"); err != nil {
		return 0, fmt.Errorf("failed to reset catalog: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_products (product_code, description, quantity, area, location)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_code) DO UPDATE SET
			description = excluded.description,
			quantity = excluded.quantity,
			area = excluded.area,
			location = excluded.location`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range products {
		if p.ProductCode == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, p.ProductCode, p.Description, p.Quantity, p.Area, p.Location); err != nil {
			return 0, fmt.Errorf("failed to store catalog product %s: %w", p.ProductCode, err)
		}
	}

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_products").Scan(&n); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// LookupCatalog reports whether code is in the local catalog.
func (s *Store) LookupCatalog(ctx context.Context, code string) (CatalogProduct, bool, error) {
	var p CatalogProduct
	err := s.db.QueryRowContext(ctx,
		"SELECT product_code, description, quantity, area, location FROM catalog_products WHERE product_code = ?",
		code,
	).Scan(&p.ProductCode, &p.Description, &p.Quantity, &p.Area, &p.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogProduct{}, false, nil
	}
	if err != nil {
		return CatalogProduct{}, false, err
	}
	return p, true, nil
}
