package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/database"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/realtime"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/storage"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/downloadtoken"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const testFrontendURL = "http://localhost:5173"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	hub      *realtime.Hub
	store    *storage.MemoryStore
	tokens   *downloadtoken.Issuer
	notifier *recordingNotifier
	google   *fakeGoogle
	audit    *services.AuditService
	router   *Router
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-encryption-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	hub := realtime.NewHub(16)
	store := storage.NewMemoryStore()
	tokens := downloadtoken.NewIssuer("test-secret", time.Minute)
	auditService := services.NewAuditService(db, store, 100)
	notifier := &recordingNotifier{}
	google := &fakeGoogle{}
	shutdown, cancel := context.WithCancel(context.Background())

	t.Cleanup(func() {
		cancel()
		auditService.Close()
		_ = hub.Close()
		_ = sqlDB.Close()
	})

	unread := services.NewUnreadService(db)
	router := &Router{
		AuthMiddleware: middleware.NewAuthMiddleware(db),
		Auth:           NewAuthHandler(db, auditService),
		MFA:            NewMFAHandler(db, auditService),
		SSO:            NewSSOHandler(db, google, services.NewSSOService(db, "state-secret"), testFrontendURL, auditService),
		Users:          NewUsersHandler(db, auditService),
		Requests:       NewRequestsHandler(db, hub, notifier, auditService),
		Chats:          NewChatsHandler(db, unread, hub, notifier, auditService),
		Artworks:       NewArtworksHandler(db, services.NewArtworkService(store), tokens, hub, auditService),
		Notifications:  NewNotificationsHandler(shutdown, unread, hub),
		Export:         NewExportHandler(services.NewExportService(db), auditService),
		Audit:          NewAuditHandler(db),
	}

	app := NewApp(10, testFrontendURL)
	router.Register(app)

	return &testEnv{
		app:      app,
		db:       db,
		hub:      hub,
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		google:   google,
		audit:    auditService,
		router:   router,
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []*models.Request
	messages []*models.Message
}

func (n *recordingNotifier) NewRequest(_ *models.User, request *models.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, request)
}

func (n *recordingNotifier) NewMessage(_ *models.User, message *models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.requests), len(n.messages)
}

type fakeGoogle struct {
	profile *services.SSOProfile
	err     error
}

func (f *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.test/auth?state=" + state
}

func (f *fakeGoogle) Exchange(_ context.Context, _ string) (*services.SSOProfile, error) {
	return f.profile, f.err
}

// auditRows drains the async audit queue and returns the rows for action.
func (env *testEnv) auditRows(t *testing.T, action string) []models.AuditLog {
	t.Helper()
	env.audit.Close()

	var rows []models.AuditLog
	if err := env.db.Where("action = ?", action).Find(&rows).Error; err != nil {
		t.Fatalf("failed loading audit rows: %v", err)
	}
	return rows
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func performMultipartUpload(t *testing.T, app *fiber.App, path, fileName string, content []byte, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	return performRequest(t, app, http.MethodPost, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}
	return raw
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T (%+v)", body["data"], body)
	}
	return data
}

func dataList(t *testing.T, body map[string]any) []any {
	t.Helper()
	data, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("expected data array, got %T (%+v)", body["data"], body)
	}
	return data
}
