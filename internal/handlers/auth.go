package handlers

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxNameLength = 150

type AuthHandler struct {
	auditor
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{DB: db, auditor: auditor{Audit: audit}}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLength {
		return utils.Error(c, fiber.StatusBadRequest, "name is too long")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	provider := services.ProviderLocal
	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
		Active:       true,
		AuthProvider: &provider,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})
	h.audit(c, &user, services.AuditUserRegister, "user", user.ID.String(), map[string]interface{}{
		"email": user.Email,
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		h.audit(c, &user, services.AuditUserLoginFailed, "user", user.ID.String(), nil)
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !user.Active {
		logger.WarnWithUser(user.ID.String(), "login_rejected_deactivated", map[string]interface{}{
			"ip": c.IP(),
		})
		return middleware.DeactivatedResponse(c, &user)
	}

	if totpEnabled(h.DB, user.ID) {
		mfaToken, err := utils.GenerateMFAToken(user.ID)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating MFA token")
		}
		logger.Info("login_mfa_pending", map[string]interface{}{
			"user_id": user.ID.String(),
		})
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"mfaRequired": true,
			"mfaToken":    mfaToken,
			"methods":     []string{"totp", "recovery"},
		})
	}

	return h.issueSession(c, &user, "password")
}

// issueSession records a successful login and returns a session token.
func (h *auditor) issueSession(c *fiber.Ctx, user *models.User, method string) error {
	token, err := utils.GenerateToken(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("user_login", map[string]interface{}{
		"user_id": user.ID.String(),
		"method":  method,
		"ip":      c.IP(),
	})
	h.audit(c, user, services.AuditUserLogin, "user", user.ID.String(), map[string]interface{}{
		"method": method,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type updateMeRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		value := strings.TrimSpace(*req.Name)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		if utf8.RuneCountInString(value) > maxNameLength {
			return utils.Error(c, fiber.StatusBadRequest, "name is too long")
		}
		updates["name"] = value
	}
	if req.Email != nil {
		value := strings.ToLower(strings.TrimSpace(*req.Email))
		if _, err := mail.ParseAddress(value); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid email")
		}
		if value != currentUser.Email {
			var count int64
			if err := h.DB.Model(&models.User{}).Where("email = ? AND id <> ?", value, currentUser.ID).Count(&count).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
			}
			if count > 0 {
				return utils.Error(c, fiber.StatusConflict, "email already registered")
			}
			updates["email"] = value
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword must be at least 8 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	// Google-only accounts have no password yet and may set one directly.
	if user.PasswordHash != "" && !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "oldPassword is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	h.audit(c, currentUser, services.AuditUserPasswordChange, "user", currentUser.ID.String(), nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

func totpEnabled(db *gorm.DB, userID uuid.UUID) bool {
	var cfg models.MFAConfig
	if err := db.Select("totp_enabled").First(&cfg, "user_id = ?", userID).Error; err != nil {
		return false
	}
	return cfg.TOTPEnabled
}
