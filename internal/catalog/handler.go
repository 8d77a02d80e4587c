package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"inventario-backend/internal/audit"
	"inventario-backend/internal/auth"
	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
	"inventario-backend/internal/validation"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type CatalogItemResponse struct {
	ProductCode string  `json:"product_code"`
	Barcode     *string `json:"barcode"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Unit        string  `json:"unit"`
	Area        *string `json:"area"`
	Location    *string `json:"location"`
}

type ImportRequest struct {
	TenantID uint         `json:"tenant_id"`
	Items    []ImportItem `json:"items" validate:"required,min=1"`
}

type DeleteRequest struct {
	TenantID uint `json:"tenant_id" validate:"required"`
}

// GET /api/catalog?tenant_id=1&page=1&page_size=1000
func ListHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := auth.ResolveTenantFromQueryOrRole(c)
		if err != nil {
			return err
		}

		page := c.QueryInt("page", 1)
		pageSize := c.QueryInt("page_size", defaultPageSize)
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		rows, total, err := repo.ListPage(c.UserContext(), tenantID, page, pageSize)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not read catalog")
		}

		items := make([]CatalogItemResponse, 0, len(rows))
		for _, r := range rows {
			items = append(items, CatalogItemResponse{
				ProductCode: r.ProductCode,
				Barcode:     r.Barcode,
				Description: r.Description,
				Quantity:    r.Quantity,
				Unit:        r.Unit,
				Area:        r.Area,
				Location:    r.Location,
			})
		}

		return c.JSON(fiber.Map{
			"items":     items,
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		})
	}
}

// POST /api/catalog/import
func ImportHandler(repo *Repository, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		var body ImportRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		if body.TenantID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
		}
		if err := requireTenant(db, body.TenantID); err != nil {
			return err
		}

		return importItems(c, repo, db, ident, body.TenantID, body.Items, "json")
	}
}

// POST /api/catalog/import/xlsx (multipart: file, tenant_id)
func ImportSpreadsheetHandler(repo *Repository, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		tenant, err := strconv.ParseUint(c.FormValue("tenant_id"), 10, 64)
		if err != nil || tenant == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
		}
		tenantID := uint(tenant)
		if err := requireTenant(db, tenantID); err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file upload failed: "+err.Error())
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files can be imported")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not open upload")
		}
		defer file.Close()

		items, err := ParseSpreadsheet(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not read spreadsheet: "+err.Error())
		}

		return importItems(c, repo, db, ident, tenantID, items, fileHeader.Filename)
	}
}

func importItems(c *fiber.Ctx, repo *Repository, db *gorm.DB, ident auth.Identity, tenantID uint, items []ImportItem, source string) error {
	inserted, skipped, err := repo.Import(c.UserContext(), tenantID, items)
	if err != nil {
		config.LogError(config.GetLogger(), "catalog", "importItems", "bulk insert failed", tenantID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "catalog import failed")
	}

	if err := audit.WriteLog(db, audit.LogOptions{
		TenantID:    &tenantID,
		UserID:      ident.UserID,
		UserName:    ident.Name,
		EntityType:  "catalog",
		EntityRef:   fmt.Sprint(tenantID),
		Action:      models.AuditActionImport,
		Description: fmt.Sprintf("%d products imported, %d skipped", inserted, skipped),
		Data:        fiber.Map{"inserted": inserted, "skipped": skipped, "source": source},
	}); err != nil {
		config.LogError(config.GetLogger(), "catalog", "importItems", "audit write failed", tenantID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "catalog import completed",
		"count":     inserted,
		"skipped":   skipped,
		"timestamp": time.Now(),
	})
}

// DELETE /api/catalog
func DeleteHandler(repo *Repository, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		var body DeleteRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}

		deleted, err := repo.DeleteAll(c.UserContext(), body.TenantID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not delete catalog")
		}

		if err := audit.WriteLog(db, audit.LogOptions{
			TenantID:    &body.TenantID,
			UserID:      ident.UserID,
			UserName:    ident.Name,
			EntityType:  "catalog",
			EntityRef:   fmt.Sprint(body.TenantID),
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%d products deleted", deleted),
			Data:        fiber.Map{"deleted": deleted},
		}); err != nil {
			config.LogError(config.GetLogger(), "catalog", "DeleteHandler", "audit write failed", body.TenantID, err)
		}

		return c.JSON(fiber.Map{
			"message":       "catalog deleted",
			"deleted_count": deleted,
		})
	}
}

func requireTenant(db *gorm.DB, tenantID uint) error {
	var count int64
	if err := db.Model(&models.Tenant{}).Where("id = ?", tenantID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "tenant not found")
	}
	return nil
}
