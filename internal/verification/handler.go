package verification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"inventario-backend/internal/audit"
	"inventario-backend/internal/auth"
	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
	"inventario-backend/internal/validation"
)

type CommitItem struct {
	ControlBatchID   string `json:"control_batch_id"`
	ProductCode      string `json:"product_code" validate:"required"`
	Description      string `json:"description"`
	SystemQuantity   int    `json:"system_quantity"`
	CountedQuantity  int    `json:"counted_quantity"`
	VerifiedQuantity int    `json:"verified_quantity" validate:"gte=0"`
	Variance         int    `json:"variance"`
	InMasterCatalog  bool   `json:"in_master_catalog"`
	Area             string `json:"area"`
	Location         string `json:"location"`
}

type CommitRequest struct {
	ControlBatchID  string       `json:"control_batch_id" validate:"required"`
	TenantID        uint         `json:"tenant_id"`
	VerifierID      uint         `json:"verifier_id"`
	VerifierName    string       `json:"verifier_name"`
	DurationSeconds int          `json:"duration_seconds"`
	Items           []CommitItem `json:"items" validate:"required,min=1,dive"`
}

// GET /api/verification/batch?control_batch_id=M-001&tenant_id=1
func BatchHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQueryOrRole(c)
		if err != nil {
			return err
		}
		batchID := strings.TrimSpace(c.Query("control_batch_id"))
		if batchID == "" {
			return fiber.NewError(fiber.StatusBadRequest, ErrMissingBatch.Error())
		}

		items, err := svc.Fuse(c.UserContext(), tenantID, batchID)
		switch {
		case errors.Is(err, ErrBatchClosed):
			return fiber.NewError(fiber.StatusConflict, "control batch already verified")
		case err != nil:
			config.LogError(config.GetLogger(), "verification", "BatchHandler", "fusion read failed", batchID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "could not build batch view")
		}

		return c.JSON(fiber.Map{
			"control_batch_id": batchID,
			"items":            items,
		})
	}
}

// POST /api/verification/commit
func CommitHandler(svc *Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		var body CommitRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		tenantID, err := auth.ResolveTenantFromBodyOrRole(c, body.TenantID)
		if err != nil {
			return err
		}

		verifierID, verifierName := ident.UserID, ident.Name
		if ident.IsAdmin() && body.VerifierID != 0 {
			verifierID, verifierName = body.VerifierID, body.VerifierName
		}

		in := CommitInput{
			TenantID:        tenantID,
			ControlBatchID:  body.ControlBatchID,
			VerifierID:      verifierID,
			VerifierName:    verifierName,
			DurationSeconds: body.DurationSeconds,
			Items:           make([]FusionRecord, 0, len(body.Items)),
		}
		for _, it := range body.Items {
			in.Items = append(in.Items, FusionRecord{
				ControlBatchID:   it.ControlBatchID,
				ProductCode:      it.ProductCode,
				Description:      it.Description,
				SystemQuantity:   it.SystemQuantity,
				CountedQuantity:  it.CountedQuantity,
				VerifiedQuantity: it.VerifiedQuantity,
				InMasterCatalog:  it.InMasterCatalog,
				Area:             it.Area,
				Location:         it.Location,
			})
		}

		n, err := svc.Commit(c.UserContext(), in)
		switch {
		case errors.Is(err, ErrBatchClosed), errors.Is(err, ErrBatchLocked):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, ErrMissingBatch), errors.Is(err, ErrNoItems),
			errors.Is(err, ErrMixedBatch), errors.Is(err, ErrDuplicateProduct), errors.Is(err, ErrMissingProduct):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case err != nil:
			config.LogError(config.GetLogger(), "verification", "CommitHandler", "commit failed", body.ControlBatchID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "verification commit failed")
		}

		if err := audit.WriteLog(db, audit.LogOptions{
			TenantID:    &tenantID,
			UserID:      ident.UserID,
			UserName:    ident.Name,
			EntityType:  "verification",
			EntityRef:   strings.TrimSpace(body.ControlBatchID),
			Action:      models.AuditActionCommit,
			Description: fmt.Sprintf("control batch verified with %d products", n),
			Data:        fiber.Map{"count": n, "verifier_id": verifierID, "duration_seconds": body.DurationSeconds},
		}); err != nil {
			config.LogError(config.GetLogger(), "verification", "CommitHandler", "audit write failed", n, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "control batch verified",
			"count":   n,
		})
	}
}

// GET /api/verification/history/:userId?limit=100
func HistoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ResolveUserParam(c)
		if err != nil {
			return err
		}
		rows, err := svc.History(c.UserContext(), userID, c.QueryInt("limit", DefaultHistoryLimit))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not read verification history")
		}
		return c.JSON(rows)
	}
}
