package handlers

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxDeactivationReasonLength = 500

type UsersHandler struct {
	auditor
	DB *gorm.DB
}

func NewUsersHandler(db *gorm.DB, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, auditor: auditor{Audit: audit}}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", searchValue, searchValue)
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "active must be true or false")
		}
		query = query.Where("active = ?", active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type updateUserRequest struct {
	Name           *string          `json:"name"`
	Role           *models.UserRole `json:"role"`
	DriveFolderURL *string          `json:"driveFolderUrl"`
}

func (h *UsersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateUserRequest
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
	if req.Role != nil {
		if !req.Role.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		if currentUser != nil && currentUser.ID == userID && *req.Role != models.UserRoleAdmin {
			return utils.Error(c, fiber.StatusBadRequest, "cannot remove your own admin role")
		}
		updates["role"] = *req.Role
	}
	if req.DriveFolderURL != nil {
		if strings.TrimSpace(*req.DriveFolderURL) == "" {
			updates["drive_folder_url"] = nil
		} else {
			normalized, err := utils.NormalizeHTTPURL(*req.DriveFolderURL)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "driveFolderUrl "+err.Error())
			}
			updates["drive_folder_url"] = normalized
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	h.audit(c, currentUser, services.AuditUserUpdate, "user", userID.String(), map[string]interface{}{
		"fields": fields,
	})

	return utils.Success(c, fiber.StatusOK, user)
}

type deactivateUserRequest struct {
	Reason string `json:"reason"`
}

func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if currentUser != nil && currentUser.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot deactivate your own account")
	}

	var req deactivateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return utils.Error(c, fiber.StatusBadRequest, "reason is required")
	}
	if utf8.RuneCountInString(reason) > maxDeactivationReasonLength {
		return utils.Error(c, fiber.StatusBadRequest, "reason is too long")
	}

	result := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"active":              false,
		"deactivation_reason": reason,
	})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deactivating user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	logger.Info("user_deactivated", map[string]interface{}{
		"user_id": userID.String(),
	})
	h.audit(c, currentUser, services.AuditUserDeactivate, "user", userID.String(), map[string]interface{}{
		"reason": reason,
	})

	return h.respondWithUser(c, userID)
}

func (h *UsersHandler) Activate(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	result := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"active":              true,
		"deactivation_reason": nil,
	})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed activating user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	h.audit(c, currentUser, services.AuditUserActivate, "user", userID.String(), nil)

	return h.respondWithUser(c, userID)
}

// Delete removes only the user row; requests, messages and artworks stay.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if currentUser != nil && currentUser.ID == userID {
		return utils.Error(c, fiber.StatusBadRequest, "cannot delete your own account")
	}

	result := h.DB.Delete(&models.User{}, "id = ?", userID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	h.audit(c, currentUser, services.AuditUserDelete, "user", userID.String(), nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

func (h *UsersHandler) respondWithUser(c *fiber.Ctx, userID interface{}) error {
	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}
	return utils.Success(c, fiber.StatusOK, user)
}
