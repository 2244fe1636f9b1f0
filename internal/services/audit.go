package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AuditUserLogin          = "user.login"
	AuditUserLoginFailed    = "user.login_failed"
	AuditUserRegister       = "user.register"
	AuditUserPasswordChange = "user.password_change"
	AuditUserUpdate         = "admin.user_update"
	AuditUserDeactivate     = "admin.user_deactivate"
	AuditUserActivate       = "admin.user_activate"
	AuditUserDelete         = "admin.user_delete"
	AuditRequestStatus      = "request.status_change"
	AuditRequestDelete      = "request.delete"
	AuditArtworkUpload      = "artwork.upload"
	AuditArtworkDelete      = "artwork.delete"
	AuditMessageDelete      = "chat.message_delete"
	AuditChatClear          = "chat.clear"
	AuditMFAEnable          = "mfa.enable"
	AuditMFADisable         = "mfa.disable"
	AuditExport             = "admin.export"
)

const auditExportBatch = 10000

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// AuditService writes audit rows from a single background goroutine so
// request handlers never wait on the insert.
type AuditService struct {
	DB      *gorm.DB
	Storage storage.ObjectStore

	queue  chan models.AuditLog
	done   chan struct{}
	mu     sync.RWMutex
	closed bool

	batchSize int
	now       func() time.Time
}

func NewAuditService(db *gorm.DB, store storage.ObjectStore, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:      db,
		Storage: store,
		queue:   make(chan models.AuditLog, queueSize),
		done:    make(chan struct{}),

		batchSize: auditExportBatch,
		now:       time.Now,
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}
	if entry.ResourceID != "" {
		resourceID := entry.ResourceID
		row.ResourceID = &resourceID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Warn("audit_log_after_close", map[string]interface{}{
			"action": entry.Action,
		})
		return
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// Close stops accepting entries and waits until the queue is written.
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

// RunExporter exports new rows to object storage on every tick until ctx ends.
func (s *AuditService) RunExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExportOnce(ctx); err != nil {
				logger.Error("audit_export_failed", err, nil)
			}
		}
	}
}

// ExportOnce uploads rows newer than the cursor as one NDJSON object and
// returns how many were exported.
func (s *AuditService) ExportOnce(ctx context.Context) (int, error) {
	if s.Storage == nil {
		return 0, errors.New("no storage configured")
	}

	var cursor models.AuditExportCursor
	err := s.DB.WithContext(ctx).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.AuditExportCursor{
			LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := s.DB.WithContext(ctx).Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("create export cursor: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("load export cursor: %w", err)
	}

	var logs []models.AuditLog
	if err := s.DB.WithContext(ctx).
		Where("created_at > ? OR (created_at = ? AND id > ?)", cursor.LastExportAt, cursor.LastExportAt, cursor.LastExportID).
		Order("created_at ASC, id ASC").
		Limit(s.batchSize).
		Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("query audit logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range logs {
		if err := enc.Encode(row); err != nil {
			logger.Error("audit_export_encode_failed", err, map[string]interface{}{
				"log_id": row.ID.String(),
			})
		}
	}

	objectName := AuditObjectName(s.now().UTC())
	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", objectName, err)
	}

	if err := s.DB.WithContext(ctx).Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": logs[len(logs)-1].CreatedAt,
		"last_export_id": logs[len(logs)-1].ID,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	}).Error; err != nil {
		return len(logs), fmt.Errorf("advance export cursor: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
	return len(logs), nil
}

func AuditObjectName(at time.Time) string {
	return fmt.Sprintf("audit-logs/%s/%s.ndjson", at.Format("2006/01/02"), at.Format("15-04-05"))
}
