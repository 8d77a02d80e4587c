package auth

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"inventario-backend/internal/models"
)

// Identity is the caller as seen by JWTMiddleware.
type Identity struct {
	UserID   uint
	Name     string
	Role     models.UserRole
	TenantID *uint
}

func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

func CurrentIdentity(c *fiber.Ctx) (Identity, error) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusUnauthorized, "user missing from token")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "role missing from token")
	}
	name, _ := c.Locals(CtxUserNameKey).(string)
	tenantID, _ := c.Locals(CtxTenantIDKey).(*uint)
	return Identity{UserID: id, Name: name, Role: role, TenantID: tenantID}, nil
}

// ResolveTenantFromBodyOrRole returns the token tenant for counters and
// verifiers. Admins act on the tenant they name in the body.
func ResolveTenantFromBodyOrRole(c *fiber.Ctx, bodyTenantID uint) (uint, error) {
	ident, err := CurrentIdentity(c)
	if err != nil {
		return 0, err
	}
	if ident.IsAdmin() {
		if bodyTenantID == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
		}
		return bodyTenantID, nil
	}
	if ident.TenantID == nil {
		return 0, fiber.NewError(fiber.StatusForbidden, "user is not assigned to a tenant")
	}
	return *ident.TenantID, nil
}

// ResolveTenantFromQueryOrRole is ResolveTenantFromBodyOrRole for ?tenant_id=.
func ResolveTenantFromQueryOrRole(c *fiber.Ctx) (uint, error) {
	var tenantID uint
	if raw := c.Query("tenant_id"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fiber.NewError(fiber.StatusBadRequest, "tenant_id must be a number")
		}
		tenantID = uint(n)
	}
	return ResolveTenantFromBodyOrRole(c, tenantID)
}

// ResolveUserParam reads :userId. Non-admins may only name themselves.
func ResolveUserParam(c *fiber.Ctx) (uint, error) {
	ident, err := CurrentIdentity(c)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(c.Params("userId"), 10, 64)
	if err != nil || n == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}
	if !ident.IsAdmin() && uint(n) != ident.UserID {
		return 0, fiber.NewError(fiber.StatusForbidden, "cannot read another user's data")
	}
	return uint(n), nil
}
