package services

import (
	"testing"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating: %v", err)
	}
	return db
}

func createServiceTestUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Name:   "Test " + string(role),
		Email:  email,
		Role:   role,
		Active: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}

func createMessage(t *testing.T, db *gorm.DB, chatID, senderID uuid.UUID, fromAdmin, read bool) *models.Message {
	t.Helper()
	msg := &models.Message{
		ChatID:        chatID,
		SenderID:      senderID,
		SenderIsAdmin: fromAdmin,
		Text:          "hello",
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("failed creating message: %v", err)
	}
	if read {
		db.Model(msg).Update("read", true)
	}
	return msg
}

func createRequest(t *testing.T, db *gorm.DB, userID uuid.UUID, read bool) *models.Request {
	t.Helper()
	req := &models.Request{
		UserID:      userID,
		Description: "a castle at dusk",
		Status:      models.RequestStatusPending,
	}
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("failed creating request: %v", err)
	}
	if read {
		db.Model(req).Update("read", true)
	}
	return req
}
