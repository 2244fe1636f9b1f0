package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/config"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the configured database and migrates it. The admin account is
// seeded separately by SeedAdmin so tests can skip it.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database_connected", map[string]interface{}{
		"driver": cfg.Driver,
	})
	return db, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// SeedAdmin creates the configured admin account when no admin exists yet.
// It returns true when a user was created.
func SeedAdmin(db *gorm.DB, cfg config.AdminSeedConfig) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return false, errors.New("admin seed requires ADMIN_EMAIL and ADMIN_PASSWORD")
	}

	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		existing.Role = models.UserRoleAdmin
		existing.Active = true
		if err := db.Save(&existing).Error; err != nil {
			return false, err
		}
		logger.Warn("admin_seed_promoted_existing_user", map[string]interface{}{
			"email": email,
		})
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return false, err
	}

	admin := models.User{
		Name:         cfg.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
		Active:       true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, err
	}

	logger.Info("admin_seeded", map[string]interface{}{
		"email": email,
	})
	return true, nil
}
