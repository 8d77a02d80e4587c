package counting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"inventario-backend/internal/audit"
	"inventario-backend/internal/auth"
	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
	"inventario-backend/internal/validation"
)

type SyncItem struct {
	ProductCode    string     `json:"product_code" validate:"required"`
	Quantity       int        `json:"quantity"`
	Area           string     `json:"area"`
	Location       string     `json:"location"`
	ControlBatchID string     `json:"control_batch_id" validate:"required"`
	ActorID        uint       `json:"actor_id"`
	ActorName      string     `json:"actor_name"`
	SessionStart   *time.Time `json:"session_start"`
	SessionEnd     *time.Time `json:"session_end"`
	TenantID       uint       `json:"tenant_id"`
	IsRecount      bool       `json:"is_recount"`
}

type SyncRequest struct {
	Items []SyncItem `json:"items" validate:"required,min=1,dive"`
}

// POST /api/counts/sync
func SyncHandler(svc *Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		var body SyncRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		for i := range body.Items {
			body.Items[i].ProductCode = strings.TrimSpace(body.Items[i].ProductCode)
			body.Items[i].ControlBatchID = strings.TrimSpace(body.Items[i].ControlBatchID)
		}
		if err := validation.Struct(&body); err != nil {
			return err
		}

		scans := make([]Scan, 0, len(body.Items))
		for _, it := range body.Items {
			tenantID, err := auth.ResolveTenantFromBodyOrRole(c, it.TenantID)
			if err != nil {
				return err
			}
			counterID, counterName := ident.UserID, ident.Name
			if ident.IsAdmin() && it.ActorID != 0 {
				counterID, counterName = it.ActorID, it.ActorName
			}
			scans = append(scans, Scan{
				TenantID:       tenantID,
				ControlBatchID: it.ControlBatchID,
				ProductCode:    it.ProductCode,
				Quantity:       it.Quantity,
				Area:           it.Area,
				Location:       it.Location,
				CounterID:      counterID,
				CounterName:    counterName,
				SessionStart:   it.SessionStart,
				SessionEnd:     it.SessionEnd,
				IsRecount:      it.IsRecount,
			})
		}

		n, err := svc.Ingest(c.UserContext(), scans)
		if err != nil {
			if errors.Is(err, ErrEmptyProductCode) || errors.Is(err, ErrMissingBatch) || errors.Is(err, ErrMissingTenant) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			config.LogError(config.GetLogger(), "counting", "SyncHandler", "bulk insert failed", len(scans), err)
			return fiber.NewError(fiber.StatusInternalServerError, "scan sync failed")
		}

		tenantID := scans[0].TenantID
		if err := audit.WriteLog(db, audit.LogOptions{
			TenantID:    &tenantID,
			UserID:      ident.UserID,
			UserName:    ident.Name,
			EntityType:  "scan_batch",
			EntityRef:   truncate(strings.Join(batchIDs(scans), ","), 100),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%d scan rows synced", n),
			Data:        fiber.Map{"count": n, "sync_id": c.Get("X-Sync-ID")},
		}); err != nil {
			config.LogError(config.GetLogger(), "counting", "SyncHandler", "audit write failed", n, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":   "scans synced",
			"count":     n,
			"timestamp": time.Now(),
		})
	}
}

// GET /api/counts/history/:userId?limit=100
func HistoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ResolveUserParam(c)
		if err != nil {
			return err
		}
		rows, err := svc.History(c.UserContext(), userID, c.QueryInt("limit", DefaultHistoryLimit))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not read scan history")
		}
		return c.JSON(rows)
	}
}

func batchIDs(scans []Scan) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range scans {
		if _, ok := seen[s.ControlBatchID]; ok {
			continue
		}
		seen[s.ControlBatchID] = struct{}{}
		ids = append(ids, s.ControlBatchID)
	}
	sort.Strings(ids)
	return ids
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
