package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// AdminNotifier tells the administrator about activity that needs attention.
type AdminNotifier interface {
	NewRequest(user *models.User, request *models.Request)
	NewMessage(user *models.User, message *models.Message)
}

type NoopNotifier struct{}

func (NoopNotifier) NewRequest(*models.User, *models.Request) {}
func (NoopNotifier) NewMessage(*models.User, *models.Message) {}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to the admin's Telegram chat. Delivery runs in
// the background and failures are only logged.
type TelegramNotifier struct {
	sender  telegramSender
	chatID  int64
	timeout time.Duration
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info("telegram_notifier_ready", map[string]interface{}{
		"bot": api.Self.UserName,
	})
	return &TelegramNotifier{sender: api, chatID: chatID, timeout: 10 * time.Second}, nil
}

func (n *TelegramNotifier) NewRequest(user *models.User, request *models.Request) {
	go n.deliver(context.Background(), formatRequestAlert(user, request))
}

func (n *TelegramNotifier) NewMessage(user *models.User, message *models.Message) {
	go n.deliver(context.Background(), formatMessageAlert(user, message))
}

func (n *TelegramNotifier) deliver(ctx context.Context, text string) {
	if err := n.Send(ctx, text); err != nil {
		logger.Error("telegram_notify_failed", err, map[string]interface{}{
			"chat_id": n.chatID,
		})
	}
}

// Send posts text synchronously.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := tgbotapi.NewMessage(n.chatID, text)
	errCh := make(chan error, 1)
	go func() {
		_, err := n.sender.Send(msg)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatRequestAlert(user *models.User, request *models.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New request from %s <%s>\n", displayName(user), userEmail(user))
	b.WriteString(truncate(request.Description, 500))
	if n := len(request.ReferenceLinks); n > 0 {
		fmt.Fprintf(&b, "\n%d reference link(s)", n)
	}
	return b.String()
}

func formatMessageAlert(user *models.User, message *models.Message) string {
	return fmt.Sprintf("New message from %s <%s>\n%s", displayName(user), userEmail(user), truncate(message.Text, 500))
}

func displayName(user *models.User) string {
	if user == nil || strings.TrimSpace(user.Name) == "" {
		return "unknown user"
	}
	return user.Name
}

func userEmail(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.Email
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
