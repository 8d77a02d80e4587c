package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"

	"inventario-backend/internal/audit"
	"inventario-backend/internal/auth"
	"inventario-backend/internal/catalog"
	"inventario-backend/internal/config"
	"inventario-backend/internal/counting"
	"inventario-backend/internal/locker"
	"inventario-backend/internal/metrics"
	"inventario-backend/internal/models"
	"inventario-backend/internal/validation"
	"inventario-backend/internal/verification"
)

// catalog imports can carry a whole tenant inventory
const bodyLimit = 32 * 1024 * 1024

// New builds the HTTP API. locks guards verification commits.
func New(cfg *config.Config, db *gorm.DB, locks locker.Locker) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Sync-ID",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	stats := metrics.NewService(db)
	repo := catalog.NewRepository(db, cfg.CatalogLookupChunk)
	counts := counting.NewService(db, stats)
	verify := verification.NewService(db, repo, locks, stats)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(db))

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/users", auth.CreateUserHandler(db))
	adminRoutes.Post("/tenants", auth.CreateTenantHandler(db))
	adminRoutes.Get("/tenants", auth.ListTenantsHandler(db))
	adminRoutes.Get("/audit-logs", audit.ListAuditLogsHandler(db))

	// Master catalog
	protected.Get("/catalog", catalog.ListHandler(repo))
	protected.Post("/catalog/import", auth.RequireRole(models.RoleAdmin), catalog.ImportHandler(repo, db))
	protected.Post("/catalog/import/xlsx", auth.RequireRole(models.RoleAdmin), catalog.ImportSpreadsheetHandler(repo, db))
	protected.Delete("/catalog", auth.RequireRole(models.RoleAdmin), catalog.DeleteHandler(repo, db))

	// Counting
	protected.Post("/counts/sync", auth.RequireRole(models.RoleCounter, models.RoleAdmin), counting.SyncHandler(counts, db))
	protected.Get("/counts/history/:userId", counting.HistoryHandler(counts))

	// Verification
	verifier := auth.RequireRole(models.RoleVerifier, models.RoleAdmin)
	protected.Get("/verification/batch", verifier, verification.BatchHandler(verify))
	protected.Post("/verification/commit", verifier, verification.CommitHandler(verify, db))
	protected.Get("/verification/history/:userId", verification.HistoryHandler(verify))

	// Stats
	protected.Get("/stats/session/:userId", metrics.SessionHandler(stats))
	protected.Get("/stats/lifetime/:userId", metrics.LifetimeHandler(stats))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
		})
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  ve.Error(),
			"fields": ve.Fields,
		})
	}
	config.LogError(config.GetLogger(), "server", "errorHandler", c.Method()+" "+c.Path(), nil, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "unexpected server error",
	})
}
