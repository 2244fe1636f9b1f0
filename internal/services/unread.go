package services

import (
	"context"
	"fmt"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Snapshot is the unread state of one viewer. It is always recomputed from
// the full set of matching rows and replaces any earlier snapshot.
type Snapshot struct {
	TotalMessages  int            `json:"totalMessages"`
	MessagesByUser map[string]int `json:"messagesByUser"`
	TotalRequests  int            `json:"totalRequests"`
	RequestsByUser map[string]int `json:"requestsByUser"`
	Total          int            `json:"total"`
	ComputedAt     time.Time      `json:"computedAt"`
}

// AggregateMessages counts messages grouped by chat, which is the customer's id.
func AggregateMessages(messages []models.Message) (int, map[string]int) {
	byUser := make(map[string]int)
	for _, m := range messages {
		byUser[m.ChatID.String()]++
	}
	return len(messages), byUser
}

// AggregateRequests counts requests grouped by owner.
func AggregateRequests(requests []models.Request) (int, map[string]int) {
	byUser := make(map[string]int)
	for _, r := range requests {
		byUser[r.UserID.String()]++
	}
	return len(requests), byUser
}

func BuildSnapshot(messages []models.Message, requests []models.Request) Snapshot {
	totalMessages, messagesByUser := AggregateMessages(messages)
	totalRequests, requestsByUser := AggregateRequests(requests)
	return Snapshot{
		TotalMessages:  totalMessages,
		MessagesByUser: messagesByUser,
		TotalRequests:  totalRequests,
		RequestsByUser: requestsByUser,
		Total:          totalMessages + totalRequests,
		ComputedAt:     time.Now().UTC(),
	}
}

type UnreadService struct {
	DB *gorm.DB
}

func NewUnreadService(db *gorm.DB) *UnreadService {
	return &UnreadService{DB: db}
}

// Snapshot loads every unread row visible to viewer and aggregates it.
//
// An admin counts customer messages it has not read plus unread requests.
// A customer counts admin messages in their own chat.
func (s *UnreadService) Snapshot(ctx context.Context, viewer *models.User) (Snapshot, error) {
	if viewer == nil {
		return Snapshot{}, ErrForbidden
	}

	var (
		messages []models.Message
		requests []models.Request
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := s.DB.WithContext(gctx).Model(&models.Message{}).Select("id", "chat_id")
		if viewer.IsAdmin() {
			query = query.Where("read = ? AND sender_is_admin = ?", false, false)
		} else {
			query = query.Where("chat_id = ? AND sender_is_admin = ? AND read = ?", viewer.ID, true, false)
		}
		if err := query.Find(&messages).Error; err != nil {
			return fmt.Errorf("load unread messages: %w", err)
		}
		return nil
	})
	if viewer.IsAdmin() {
		g.Go(func() error {
			err := s.DB.WithContext(gctx).Model(&models.Request{}).
				Select("id", "user_id").
				Where("read = ?", false).
				Find(&requests).Error
			if err != nil {
				return fmt.Errorf("load unread requests: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return BuildSnapshot(messages, requests), nil
}

// ChatUnreadCounts returns, per chat, how many customer messages the admin
// has not read yet. Used by the admin chat list.
func (s *UnreadService) ChatUnreadCounts(ctx context.Context, chatIDs []uuid.UUID) (map[string]int, error) {
	if len(chatIDs) == 0 {
		return map[string]int{}, nil
	}

	var messages []models.Message
	if err := s.DB.WithContext(ctx).
		Select("id", "chat_id").
		Where("chat_id IN ? AND read = ? AND sender_is_admin = ?", chatIDs, false, false).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load chat unread counts: %w", err)
	}
	_, byChat := AggregateMessages(messages)
	return byChat, nil
}
