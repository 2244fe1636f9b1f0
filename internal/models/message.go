package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message belongs to the chat of one customer; ChatID is that customer's user id.
// Messages are never edited, so there is no UpdatedAt.
type Message struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID        uuid.UUID `json:"chatId" gorm:"type:uuid;not null;index"`
	SenderID      uuid.UUID `json:"senderId" gorm:"type:uuid;not null"`
	SenderIsAdmin bool      `json:"senderIsAdmin" gorm:"not null;default:false;index"`
	Text          string    `json:"text" gorm:"type:text;not null"`
	Read          bool      `json:"read" gorm:"not null;default:false;index"`
	CreatedAt     time.Time `json:"createdAt" gorm:"not null;index"`
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (Message) TableName() string {
	return "messages"
}
