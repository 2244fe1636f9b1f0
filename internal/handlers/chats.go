package handlers

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxMessageLength   = 4000
	messagesPageLength = 50
)

// ChatsHandler serves the one thread every customer has with the admin.
// A chat id is the customer's user id.
type ChatsHandler struct {
	auditor
	DB       *gorm.DB
	Unread   *services.UnreadService
	Broker   realtime.Broker
	Notifier services.AdminNotifier
}

func NewChatsHandler(db *gorm.DB, unread *services.UnreadService, broker realtime.Broker, notifier services.AdminNotifier, audit *services.AuditService) *ChatsHandler {
	if notifier == nil {
		notifier = services.NoopNotifier{}
	}
	return &ChatsHandler{
		DB:       db,
		Unread:   unread,
		Broker:   broker,
		Notifier: notifier,
		auditor:  auditor{Audit: audit},
	}
}

type chatSummary struct {
	ChatID      uuid.UUID       `json:"chatId"`
	User        *models.User    `json:"user,omitempty"`
	LastMessage *models.Message `json:"lastMessage,omitempty"`
	Unread      int             `json:"unread"`
}

// List returns one row per customer that has messages, most recent first.
func (h *ChatsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.Message{}).Distinct("chat_id").Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting chats")
	}

	var chatIDs []uuid.UUID
	if err := utils.ApplyPagination(
		h.DB.Model(&models.Message{}).Select("chat_id").Group("chat_id").Order("MAX(created_at) DESC"),
		p,
	).Pluck("chat_id", &chatIDs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing chats")
	}

	var users []models.User
	if len(chatIDs) > 0 {
		if err := h.DB.Where("id IN ?", chatIDs).Find(&users).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading chat users")
		}
	}
	usersByID := make(map[uuid.UUID]*models.User, len(users))
	for i := range users {
		usersByID[users[i].ID] = &users[i]
	}

	unread, err := h.Unread.ChatUnreadCounts(c.UserContext(), chatIDs)
	if err != nil {
		logger.Error("chat_unread_counts_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting unread messages")
	}

	summaries := make([]chatSummary, 0, len(chatIDs))
	for _, chatID := range chatIDs {
		summary := chatSummary{
			ChatID: chatID,
			User:   usersByID[chatID],
			Unread: unread[chatID.String()],
		}
		var last models.Message
		if err := h.DB.Where("chat_id = ?", chatID).Order("created_at DESC").First(&last).Error; err == nil {
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}

	return utils.Paginated(c, summaries, p.Page, p.Limit, total)
}

// chatFor resolves :chatId and checks that the caller takes part in it.
func (h *ChatsHandler) chatFor(c *fiber.Ctx) (*models.User, uuid.UUID, bool, error) {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return nil, uuid.Nil, false, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	chatID, err := resolveChatID(c, currentUser)
	if err != nil {
		return nil, uuid.Nil, false, utils.Error(c, fiber.StatusBadRequest, "invalid chat id")
	}
	if !canAccessUserResource(currentUser, chatID) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":  "chat_access",
			"chat_id": chatID.String(),
		})
		return nil, uuid.Nil, false, utils.Error(c, fiber.StatusForbidden, "access denied")
	}
	return currentUser, chatID, true, nil
}

func (h *ChatsHandler) Messages(c *fiber.Ctx) error {
	_, chatID, ok, err := h.chatFor(c)
	if !ok {
		return err
	}

	p := utils.ParsePaginationWithDefault(c, messagesPageLength)
	query := h.DB.Model(&models.Message{}).Where("chat_id = ?", chatID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting messages")
	}

	var messages []models.Message
	if err := utils.ApplyPagination(query.Order("created_at ASC"), p).Find(&messages).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing messages")
	}

	return utils.Paginated(c, messages, p.Page, p.Limit, total)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h *ChatsHandler) Send(c *fiber.Ctx) error {
	currentUser, chatID, ok, err := h.chatFor(c)
	if !ok {
		return err
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return utils.Error(c, fiber.StatusBadRequest, "text is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return utils.Error(c, fiber.StatusBadRequest, "text must be at most 4000 characters")
	}

	customer := currentUser
	if currentUser.ID != chatID {
		var owner models.User
		if err := h.DB.First(&owner, "id = ?", chatID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Error(c, fiber.StatusNotFound, "chat not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading chat")
		}
		customer = &owner
	}

	message := models.Message{
		ChatID:        chatID,
		SenderID:      currentUser.ID,
		SenderIsAdmin: currentUser.IsAdmin(),
		Text:          text,
	}
	if err := h.DB.Create(&message).Error; err != nil {
		logger.ErrorWithUser(currentUser.ID.String(), "message_create_failed", err, map[string]interface{}{
			"chat_id": chatID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed sending message")
	}

	if message.SenderIsAdmin {
		publishEvent(c, h.Broker, realtime.EventMessage, chatID, realtime.UserTopic(chatID.String()))
	} else {
		publishEvent(c, h.Broker, realtime.EventMessage, chatID, realtime.TopicAdmin)
		h.Notifier.NewMessage(customer, &message)
	}

	return utils.Success(c, fiber.StatusCreated, message)
}

// MarkRead marks as read every message in the chat sent by the other party.
func (h *ChatsHandler) MarkRead(c *fiber.Ctx) error {
	currentUser, chatID, ok, err := h.chatFor(c)
	if !ok {
		return err
	}

	fromAdmin := !currentUser.IsAdmin()
	result := h.DB.Model(&models.Message{}).
		Where("chat_id = ? AND sender_is_admin = ? AND read = ?", chatID, fromAdmin, false).
		Update("read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed marking messages as read")
	}

	if result.RowsAffected > 0 {
		topic := realtime.UserTopic(chatID.String())
		if currentUser.IsAdmin() {
			topic = realtime.TopicAdmin
		}
		publishEvent(c, h.Broker, realtime.EventRead, chatID, topic)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": result.RowsAffected})
}

func (h *ChatsHandler) DeleteMessage(c *fiber.Ctx) error {
	currentUser, chatID, ok, err := h.chatFor(c)
	if !ok {
		return err
	}
	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	result := h.DB.Delete(&models.Message{}, "id = ? AND chat_id = ?", messageID, chatID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting message")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "message not found")
	}

	h.audit(c, currentUser, services.AuditMessageDelete, "message", messageID.String(), map[string]interface{}{
		"chat_id": chatID.String(),
	})
	publishEvent(c, h.Broker, realtime.EventMessage, chatID, realtime.TopicAdmin, realtime.UserTopic(chatID.String()))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}

func (h *ChatsHandler) Clear(c *fiber.Ctx) error {
	currentUser, chatID, ok, err := h.chatFor(c)
	if !ok {
		return err
	}

	result := h.DB.Delete(&models.Message{}, "chat_id = ?", chatID)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed clearing chat")
	}

	logger.InfoWithUser(currentUser.ID.String(), "chat_cleared", map[string]interface{}{
		"chat_id": chatID.String(),
		"deleted": result.RowsAffected,
	})
	h.audit(c, currentUser, services.AuditChatClear, "chat", chatID.String(), map[string]interface{}{
		"deleted": result.RowsAffected,
	})
	publishEvent(c, h.Broker, realtime.EventMessage, chatID, realtime.TopicAdmin, realtime.UserTopic(chatID.String()))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": result.RowsAffected})
}
