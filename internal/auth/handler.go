package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"inventario-backend/internal/audit"
	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
	"inventario-backend/internal/validation"
)

type RegisterAdminRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=counter verifier admin"`
	TenantID *uint           `json:"tenant_id"`
}

type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,max=150"`
}

type UserResponse struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	TenantID *uint           `json:"tenant_id"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, TenantID: u.TenantID}
}

// POST /api/auth/register-admin, only while no admin exists.
func RegisterAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var count int64
		if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "an admin already exists")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		user := models.User{
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}
		if err := db.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create user")
		}

		return c.Status(fiber.StatusCreated).JSON(toUserResponse(&user))
	}
}

func LoginHandler(db *gorm.DB, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := db.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}

		token, err := GenerateToken(secret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  toUserResponse(&user),
		})
	}
}

func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := CurrentIdentity(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := db.Preload("Tenant").First(&user, ident.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return err
		}

		resp := fiber.Map{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"role":      user.Role,
			"tenant_id": user.TenantID,
		}
		if user.Tenant != nil {
			resp["tenant"] = fiber.Map{"id": user.Tenant.ID, "name": user.Tenant.Name}
		}
		return c.JSON(resp)
	}
}

// POST /api/admin/users
func CreateUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, err := CurrentIdentity(c)
		if err != nil {
			return err
		}

		var body CreateUserRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		if body.Role != models.RoleAdmin {
			if body.TenantID == nil {
				return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required for counters and verifiers")
			}
			var tenant models.Tenant
			if err := db.First(&tenant, *body.TenantID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "tenant not found")
			}
		}

		var count int64
		if err := db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		user := models.User{
			TenantID:     body.TenantID,
			Name:         strings.TrimSpace(body.Name),
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
		}
		if err := db.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create user")
		}

		resp := toUserResponse(&user)
		if err := audit.WriteLog(db, audit.LogOptions{
			TenantID:    user.TenantID,
			UserID:      ident.UserID,
			UserName:    ident.Name,
			EntityType:  "user",
			EntityRef:   user.Email,
			Action:      models.AuditActionCreate,
			Description: "user created with role " + string(user.Role),
			Data:        resp,
		}); err != nil {
			config.LogError(config.GetLogger(), "auth", "CreateUserHandler", "audit write failed", user.ID, err)
		}

		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

// POST /api/admin/tenants
func CreateTenantHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTenantRequest
		if err := validation.ParseBody(c, &body); err != nil {
			return err
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}

		var count int64
		if err := db.Model(&models.Tenant{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "tenant already exists")
		}

		tenant := models.Tenant{Name: name}
		if err := db.Create(&tenant).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create tenant")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": tenant.ID, "name": tenant.Name})
	}
}

// GET /api/admin/tenants
func ListTenantsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var tenants []models.Tenant
		if err := db.Order("name ASC").Find(&tenants).Error; err != nil {
			return err
		}
		out := make([]fiber.Map, 0, len(tenants))
		for _, t := range tenants {
			out = append(out, fiber.Map{"id": t.ID, "name": t.Name})
		}
		return c.JSON(out)
	}
}
