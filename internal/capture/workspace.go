package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoWorkspace       = errors.New("no control batch is open for verification")
	ErrWorkspaceOpen     = errors.New("a control batch is already open for verification")
	ErrProductNotInBatch = errors.New("product is not part of the open control batch")
	ErrEmptyVerification = errors.New("control batch has no products to verify")
)

// WorkspaceItem is one reconciled product the verifier is editing.
type WorkspaceItem struct {
	ProductCode      string
	Description      string
	SystemQuantity   int
	CountedQuantity  int
	VerifiedQuantity int
	InMasterCatalog  bool
	Area             string
	Location         string
}

func (i WorkspaceItem) Variance() int {
	return i.VerifiedQuantity - i.SystemQuantity
}

// Workspace is the locally held verification of one control batch.
type Workspace struct {
	ControlBatchID string
	TenantID       uint
	OpenedAt       time.Time
	Items          []WorkspaceItem
}

// OpenWorkspace stores the fused items of a control batch for offline editing.
func (s *Store) OpenWorkspace(ctx context.Context, controlBatchID string, tenantID uint, items []WorkspaceItem) error {
	if strings.TrimSpace(controlBatchID) == "" {
		return ErrMissingControlBatch
	}
	if len(items) == 0 {
		return ErrEmptyVerification
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM verification_workspace").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrWorkspaceOpen
	}

	openedAt := s.now().UnixMilli()
	for pos, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO verification_workspace (product_code, control_batch_id, tenant_id, description, system_quantity,
				counted_quantity, verified_quantity, in_master_catalog, area, location, position, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ProductCode, controlBatchID, tenantID, it.Description, it.SystemQuantity,
			it.CountedQuantity, it.VerifiedQuantity, it.InMasterCatalog, it.Area, it.Location, pos, openedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store workspace item %s: %w", it.ProductCode, err)
		}
	}
	return tx.Commit()
}

func (s *Store) CurrentWorkspace(ctx context.Context) (Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT control_batch_id, tenant_id, opened_at, product_code, description, system_quantity,
			counted_quantity, verified_quantity, in_master_catalog, area, location
		FROM verification_workspace ORDER BY position ASC`)
	if err != nil {
		return Workspace{}, err
	}
	defer rows.Close()

	var ws Workspace
	for rows.Next() {
		var (
			it       WorkspaceItem
			openedAt int64
		)
		if err := rows.Scan(&ws.ControlBatchID, &ws.TenantID, &openedAt, &it.ProductCode, &it.Description,
			&it.SystemQuantity, &it.CountedQuantity, &it.VerifiedQuantity, &it.InMasterCatalog,
			&it.Area, &it.Location); err != nil {
			return Workspace{}, err
		}
		ws.OpenedAt = time.UnixMilli(openedAt)
		ws.Items = append(ws.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Workspace{}, err
	}
	if len(ws.Items) == 0 {
		return Workspace{}, ErrNoWorkspace
	}
	return ws, nil
}

// SetVerified records the verifier's quantity for a product.
func (s *Store) SetVerified(ctx context.Context, productCode string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE verification_workspace SET verified_quantity = ? WHERE product_code = ?",
		quantity, strings.TrimSpace(productCode),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotInBatch
	}
	return nil
}

// CloseWorkspace discards the local verification. Server state is untouched.
func (s *Store) CloseWorkspace(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM verification_workspace")
	return err
}
