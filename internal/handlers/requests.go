package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxReferenceLinks    = 10
	maxDescriptionLength = 5000
)

type RequestsHandler struct {
	auditor
	DB       *gorm.DB
	Broker   realtime.Broker
	Notifier services.AdminNotifier
}

func NewRequestsHandler(db *gorm.DB, broker realtime.Broker, notifier services.AdminNotifier, audit *services.AuditService) *RequestsHandler {
	if notifier == nil {
		notifier = services.NoopNotifier{}
	}
	return &RequestsHandler{DB: db, Broker: broker, Notifier: notifier, auditor: auditor{Audit: audit}}
}

type requestInput struct {
	Description    *string   `json:"description"`
	ReferenceLinks *[]string `json:"referenceLinks"`
}

func cleanDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if description == "" {
		return "", errors.New("description is required")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", fmt.Errorf("description must be at most %d characters", maxDescriptionLength)
	}
	return description, nil
}

func cleanReferenceLinks(raw []string) ([]string, error) {
	links := make([]string, 0, len(raw))
	for _, link := range raw {
		if strings.TrimSpace(link) == "" {
			continue
		}
		normalized, err := utils.NormalizeHTTPURL(link)
		if err != nil {
			return nil, fmt.Errorf("reference link %q %s", link, err.Error())
		}
		links = append(links, normalized)
	}
	if len(links) > maxReferenceLinks {
		return nil, fmt.Errorf("at most %d reference links are allowed", maxReferenceLinks)
	}
	return links, nil
}

func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req requestInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	rawDescription := ""
	if req.Description != nil {
		rawDescription = *req.Description
	}
	description, err := cleanDescription(rawDescription)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var links []string
	if req.ReferenceLinks != nil {
		links, err = cleanReferenceLinks(*req.ReferenceLinks)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
	}

	request := models.Request{
		UserID:         currentUser.ID,
		Description:    description,
		ReferenceLinks: datatypes.JSONSlice[string](links),
		Status:         models.RequestStatusPending,
	}
	if err := h.DB.Create(&request).Error; err != nil {
		logger.ErrorWithUser(currentUser.ID.String(), "request_create_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating request")
	}

	logger.InfoWithUser(currentUser.ID.String(), "request_created", map[string]interface{}{
		"request_id": request.ID.String(),
		"links":      len(links),
	})

	publishEvent(c, h.Broker, realtime.EventRequest, currentUser.ID, realtime.TopicAdmin)
	h.Notifier.NewRequest(currentUser, &request)

	return utils.Success(c, fiber.StatusCreated, request)
}

func (h *RequestsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	query := h.DB.Model(&models.Request{})

	if currentUser.IsAdmin() {
		if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
			userID, err := parseUUID(raw)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid userId")
			}
			query = query.Where("user_id = ?", userID)
		}
		if raw := strings.TrimSpace(c.Query("unread")); raw != "" {
			unread, err := strconv.ParseBool(raw)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "unread must be true or false")
			}
			query = query.Where("read = ?", !unread)
		}
	} else {
		query = query.Where("user_id = ?", currentUser.ID)
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.RequestStatus(raw)
		if !status.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid status")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting requests")
	}

	var requests []models.Request
	if err := utils.ApplyPagination(query.Preload("User").Order("created_at DESC"), p).Find(&requests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing requests")
	}

	return utils.Paginated(c, requests, p.Page, p.Limit, total)
}

// loadRequest fetches the request named by :id and checks the caller may see it.
func (h *RequestsHandler) loadRequest(c *fiber.Ctx, currentUser *models.User) (*models.Request, error) {
	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	var request models.Request
	if err := h.DB.Preload("User").First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.Error(c, fiber.StatusNotFound, "request not found")
		}
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed fetching request")
	}

	if !canAccessUserResource(currentUser, request.UserID) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":     "request_access",
			"request_id": request.ID.String(),
		})
		return nil, utils.Error(c, fiber.StatusForbidden, "access denied")
	}
	return &request, nil
}

func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	request, err := h.loadRequest(c, currentUser)
	if request == nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, request)
}

// Update lets the owner edit a pending request. Admins may edit at any time.
func (h *RequestsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	request, err := h.loadRequest(c, currentUser)
	if request == nil {
		return err
	}
	if !currentUser.IsAdmin() && request.Status != models.RequestStatusPending {
		return utils.Error(c, fiber.StatusConflict, "only pending requests can be edited")
	}

	var req requestInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Description != nil {
		description, err := cleanDescription(*req.Description)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		updates["description"] = description
	}
	if req.ReferenceLinks != nil {
		links, err := cleanReferenceLinks(*req.ReferenceLinks)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		updates["reference_links"] = datatypes.JSONSlice[string](links)
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Request{}).Where("id = ?", request.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating request")
	}

	var updated models.Request
	if err := h.DB.Preload("User").First(&updated, "id = ?", request.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated request")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type updateStatusRequest struct {
	Status models.RequestStatus `json:"status"`
}

// UpdateStatus sets any status from any status.
func (h *RequestsHandler) UpdateStatus(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if !req.Status.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid status")
	}

	var request models.Request
	if err := h.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "request not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching request")
	}

	previous := request.Status
	if err := h.DB.Model(&request).Update("status", req.Status).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating status")
	}
	request.Status = req.Status

	h.audit(c, currentUser, services.AuditRequestStatus, "request", request.ID.String(), map[string]interface{}{
		"from": string(previous),
		"to":   string(req.Status),
	})
	publishEvent(c, h.Broker, realtime.EventRequest, request.UserID, realtime.UserTopic(request.UserID.String()))

	return utils.Success(c, fiber.StatusOK, request)
}

func (h *RequestsHandler) MarkRead(c *fiber.Ctx) error {
	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request id")
	}

	var request models.Request
	if err := h.DB.First(&request, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "request not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching request")
	}

	if err := h.DB.Model(&request).Update("read", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed marking request as read")
	}
	request.Read = true

	publishEvent(c, h.Broker, realtime.EventRead, request.UserID, realtime.TopicAdmin)

	return utils.Success(c, fiber.StatusOK, request)
}

func (h *RequestsHandler) MarkAllRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	result := h.DB.Model(&models.Request{}).Where("read = ?", false).Update("read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed marking requests as read")
	}

	if result.RowsAffected > 0 {
		publishEvent(c, h.Broker, realtime.EventRead, currentUser.ID, realtime.TopicAdmin)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": result.RowsAffected})
}

// Delete lets the owner withdraw a pending request. Admins may delete any request.
func (h *RequestsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	request, err := h.loadRequest(c, currentUser)
	if request == nil {
		return err
	}
	if !currentUser.IsAdmin() && request.Status != models.RequestStatusPending {
		return utils.Error(c, fiber.StatusConflict, "only pending requests can be deleted")
	}

	if err := h.DB.Delete(&models.Request{}, "id = ?", request.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting request")
	}

	h.audit(c, currentUser, services.AuditRequestDelete, "request", request.ID.String(), map[string]interface{}{
		"owner_id": request.UserID.String(),
	})
	publishEvent(c, h.Broker, realtime.EventRequest, request.UserID, realtime.TopicAdmin, realtime.UserTopic(request.UserID.String()))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "request deleted"})
}
