package handlers

import (
	"errors"
	"strings"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	return middleware.GetRequestID(c)
}

// resolveChatID accepts "me" as the caller's own chat.
func resolveChatID(c *fiber.Ctx, user *models.User) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Params("chatId"))
	if raw == "me" {
		return user.ID, nil
	}
	return parseUUID(raw)
}

// canAccessUserResource reports whether the caller may read data owned by ownerID.
func canAccessUserResource(user *models.User, ownerID uuid.UUID) bool {
	return user.IsAdmin() || user.ID == ownerID
}

// serviceError maps the service sentinel errors onto the response envelope.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return utils.Error(c, fiber.StatusBadRequest, validation.Message)
	case errors.Is(err, services.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, services.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, fallback)
	}
}

func (h *auditor) audit(c *fiber.Ctx, actor *models.User, action, resourceType, resourceID string, details map[string]interface{}) {
	if h.Audit == nil {
		return
	}
	entry := services.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	}
	if actor != nil {
		id := actor.ID
		entry.UserID = &id
	}
	h.Audit.LogAsync(entry)
}

// auditor is embedded by handlers that record audit entries.
type auditor struct {
	Audit *services.AuditService
}

// publishEvent tells subscribers of topics that userID's data changed.
// Failures are logged; the write that triggered the event already succeeded.
func publishEvent(c *fiber.Ctx, broker realtime.Broker, kind string, userID uuid.UUID, topics ...string) {
	if broker == nil {
		return
	}
	event := realtime.NewEvent(kind, userID.String())
	if err := realtime.PublishAll(c.UserContext(), broker, event, topics...); err != nil {
		logger.Error("realtime_publish_failed", err, map[string]interface{}{
			"kind":   kind,
			"topics": topics,
		})
	}
}
