package syncclient

import (
	"context"
	"fmt"
	"time"

	"inventario-backend/internal/capture"
)

type BatchSource interface {
	FetchBatch(ctx context.Context, tenantID uint, controlBatchID string) (FusionResponse, error)
}

type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (int, error)
}

type WorkspaceStore interface {
	OpenWorkspace(ctx context.Context, controlBatchID string, tenantID uint, items []capture.WorkspaceItem) error
	CurrentWorkspace(ctx context.Context) (capture.Workspace, error)
	CloseWorkspace(ctx context.Context) error
}

// OpenVerification fetches the fusion read of a control batch and keeps it
// locally for editing. A closed batch comes back as a 409 StatusError.
func OpenVerification(ctx context.Context, src BatchSource, ws WorkspaceStore, tenantID uint, controlBatchID string) (capture.Workspace, error) {
	if _, err := ws.CurrentWorkspace(ctx); err == nil {
		return capture.Workspace{}, capture.ErrWorkspaceOpen
	}

	fused, err := src.FetchBatch(ctx, tenantID, controlBatchID)
	if err != nil {
		return capture.Workspace{}, err
	}

	items := make([]capture.WorkspaceItem, 0, len(fused.Items))
	for _, f := range fused.Items {
		items = append(items, capture.WorkspaceItem{
			ProductCode:      f.ProductCode,
			Description:      f.Description,
			SystemQuantity:   f.SystemQuantity,
			CountedQuantity:  f.CountedQuantity,
			VerifiedQuantity: f.VerifiedQuantity,
			InMasterCatalog:  f.InMasterCatalog,
			Area:             f.Area,
			Location:         f.Location,
		})
	}
	if err := ws.OpenWorkspace(ctx, controlBatchID, tenantID, items); err != nil {
		return capture.Workspace{}, err
	}
	return ws.CurrentWorkspace(ctx)
}

// CommitVerification posts the local workspace as the final verification of
// its batch. The workspace is removed only after the server accepted it.
func CommitVerification(ctx context.Context, dst Committer, ws WorkspaceStore, verifier capture.Actor, now time.Time) (int, error) {
	w, err := ws.CurrentWorkspace(ctx)
	if err != nil {
		return 0, err
	}

	req := CommitRequest{
		ControlBatchID:  w.ControlBatchID,
		TenantID:        w.TenantID,
		VerifierID:      verifier.ID,
		VerifierName:    verifier.Name,
		DurationSeconds: elapsedSeconds(w.OpenedAt, now),
		Items:           make([]FusionItem, 0, len(w.Items)),
	}
	for _, it := range w.Items {
		req.Items = append(req.Items, FusionItem{
			ControlBatchID:   w.ControlBatchID,
			ProductCode:      it.ProductCode,
			Description:      it.Description,
			SystemQuantity:   it.SystemQuantity,
			CountedQuantity:  it.CountedQuantity,
			VerifiedQuantity: it.VerifiedQuantity,
			Variance:         it.Variance(),
			InMasterCatalog:  it.InMasterCatalog,
			Area:             it.Area,
			Location:         it.Location,
		})
	}

	n, err := dst.Commit(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := ws.CloseWorkspace(ctx); err != nil {
		return n, fmt.Errorf("verification committed but workspace was not cleared: %w", err)
	}
	return n, nil
}

func elapsedSeconds(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
