package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"inventario-backend/internal/auth"
	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
)

// GET /api/stats/session/:userId?role=counter|verifier
func SessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ResolveUserParam(c)
		if err != nil {
			return err
		}
		ident, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		role := models.UserRole(c.Query("role"))
		if role == "" {
			role = ident.Role
			if ident.IsAdmin() {
				role = models.RoleCounter
			}
		}
		if role != models.RoleCounter && role != models.RoleVerifier {
			return fiber.NewError(fiber.StatusBadRequest, "role must be counter or verifier")
		}

		stats, err := svc.RefreshSession(c.UserContext(), userID, role, time.Now())
		if err != nil {
			config.LogError(config.GetLogger(), "metrics", "SessionHandler", "session refresh failed", userID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute session stats")
		}
		return c.JSON(fiber.Map{
			"stats":       stats,
			"active_time": FormatActive(stats.ActiveSeconds),
		})
	}
}

// GET /api/stats/lifetime/:userId
func LifetimeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.ResolveUserParam(c)
		if err != nil {
			return err
		}
		stats, err := svc.RefreshLifetime(c.UserContext(), userID)
		if err != nil {
			config.LogError(config.GetLogger(), "metrics", "LifetimeHandler", "lifetime refresh failed", userID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute lifetime stats")
		}
		return c.JSON(stats)
	}
}
