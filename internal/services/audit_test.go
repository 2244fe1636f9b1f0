package services

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditServiceLogAsync(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAuditService(db, nil, 10)

	userID := uuid.New()
	service.LogAsync(AuditEntry{
		UserID:       &userID,
		Action:       AuditRequestStatus,
		ResourceType: "request",
		ResourceID:   "req-1",
		Details:      map[string]interface{}{"status": "completed"},
		IPAddress:    "127.0.0.1",
		RequestID:    "req-123",
	})
	service.Close()

	var logs []models.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, AuditRequestStatus, logs[0].Action)
	require.NotNil(t, logs[0].ResourceID)
	assert.Equal(t, "req-1", *logs[0].ResourceID)
	assert.Equal(t, "completed", logs[0].Details["status"])
}

func TestAuditServiceAfterClose(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAuditService(db, nil, 1)
	service.Close()
	service.Close()

	service.LogAsync(AuditEntry{Action: "ignored", ResourceType: "x"})

	var count int64
	db.Model(&models.AuditLog{}).Count(&count)
	assert.Zero(t, count)
}

func TestAuditServiceExportOnce(t *testing.T) {
	db := setupServiceTestDB(t)
	store := storage.NewMemoryStore()
	service := NewAuditService(db, store, 10)

	for _, action := range []string{AuditUserLogin, AuditArtworkUpload} {
		service.LogAsync(AuditEntry{Action: action, ResourceType: "user", IPAddress: "10.0.0.1"})
	}
	service.Close()

	ctx := context.Background()
	exported, err := service.ExportOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, exported)

	objects, err := store.List(ctx, "audit-logs/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, strings.HasSuffix(objects[0].Key, ".ndjson"))

	reader, _, err := store.Download(ctx, objects[0].Key)
	require.NoError(t, err)
	defer reader.Close()
	lines := readLines(t, reader)
	require.Len(t, lines, 2)
	var first models.AuditLog
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, AuditUserLogin, first.Action)

	exported, err = service.ExportOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, exported, "cursor advanced past exported rows")

	var cursor models.AuditExportCursor
	require.NoError(t, db.First(&cursor).Error)
	assert.EqualValues(t, 2, cursor.ExportedCount)
}

func TestAuditServiceExportSplitsSameTimestamp(t *testing.T) {
	db := setupServiceTestDB(t)
	store := storage.NewMemoryStore()
	service := NewAuditService(db, store, 1)
	service.Close()
	service.batchSize = 2
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	// Five rows share one timestamp so every batch boundary falls inside the group.
	at := time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC)
	want := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		row := models.AuditLog{Action: AuditUserLogin, ResourceType: "user", IPAddress: "10.0.0.1", CreatedAt: at}
		require.NoError(t, db.Create(&row).Error)
		want[row.ID] = true
	}

	ctx := context.Background()
	total := 0
	for i := 0; i < 4; i++ {
		exported, err := service.ExportOnce(ctx)
		require.NoError(t, err)
		total += exported
	}
	assert.Equal(t, 5, total)

	objects, err := store.List(ctx, "audit-logs/")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	seen := map[uuid.UUID]bool{}
	for _, object := range objects {
		reader, _, err := store.Download(ctx, object.Key)
		require.NoError(t, err)
		for _, line := range readLines(t, reader) {
			var row models.AuditLog
			require.NoError(t, json.Unmarshal([]byte(line), &row))
			assert.False(t, seen[row.ID], "row %s exported twice", row.ID)
			seen[row.ID] = true
		}
		reader.Close()
	}
	assert.Equal(t, want, seen)
}

func TestAuditServiceExportWithoutStorage(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAuditService(db, nil, 1)
	defer service.Close()

	_, err := service.ExportOnce(context.Background())
	assert.Error(t, err)
}

func TestAuditObjectName(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "audit-logs/2024/01/02/03-04-05.ndjson", AuditObjectName(at))
}

func readLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, scanner.Err())
	return lines
}
