package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
)

func assertErrorResponse(t *testing.T, statusCode int, body map[string]any, expectedStatus int, expectedMessage string) {
	t.Helper()

	if statusCode != expectedStatus {
		t.Fatalf("expected status code %d, got %d", expectedStatus, statusCode)
	}

	success, ok := body["success"].(bool)
	if !ok {
		t.Fatalf("expected success field to be boolean, got %T", body["success"])
	}
	if success {
		t.Fatalf("expected success=false, got %v", body["success"])
	}

	errMessage, ok := body["error"].(string)
	if !ok {
		t.Fatalf("expected error field to be string, got %T", body["error"])
	}
	if errMessage != expectedMessage {
		t.Fatalf("expected error message %q, got %q", expectedMessage, errMessage)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/health", nil, nil)
	body := decodeJSONMap(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected health status %q, got %v", "ok", body["status"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/api/version", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))

	if data["version"] != Version {
		t.Fatalf("expected version %q, got %v", Version, data["version"])
	}
	if data["apiVersion"] != "v1" {
		t.Fatalf("expected apiVersion %q, got %v", "v1", data["apiVersion"])
	}
	if data["service"] != "pixelart" {
		t.Fatalf("expected service %q, got %v", "pixelart", data["service"])
	}
}

func TestAuthValidationEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("register rejects malformed json", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPost, "/api/auth/register", strings.NewReader("{"), map[string]string{
			"Content-Type": "application/json",
		})
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid request body")
	})

	t.Run("register rejects missing email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{}, nil)
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid email")
	})

	t.Run("register rejects short password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"name":     "Short",
			"email":    "short@test.com",
			"password": "1234567",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "password must be at least 8 characters")
	})

	t.Run("register rejects blank name", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"name":     "   ",
			"email":    "blank@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "name is required")
	})

	t.Run("login rejects empty request body", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{}, nil)
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "email and password are required")
	})

	t.Run("login rejects malformed json", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPost, "/api/auth/login", strings.NewReader("{"), map[string]string{
			"Content-Type": "application/json",
		})
		body := decodeJSONMap(t, resp)

		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid request body")
	})
}

func TestAuthMiddlewareRejections(t *testing.T) {
	env := setupTestEnv(t)

	testCases := []struct {
		name            string
		path            string
		authorization   string
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "missing authorization header",
			path:            "/api/auth/me",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "missing authorization header",
		},
		{
			name:            "malformed authorization header",
			path:            "/api/requests",
			authorization:   "Token abc",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid authorization format",
		},
		{
			name:            "invalid bearer token",
			path:            "/api/requests",
			authorization:   "Bearer not-a-jwt",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid or expired token",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.authorization != "" {
				headers["Authorization"] = tc.authorization
			}

			resp := performRequest(t, env.app, http.MethodGet, tc.path, nil, headers)
			body := decodeJSONMap(t, resp)

			assertErrorResponse(t, resp.StatusCode, body, tc.expectedStatus, tc.expectedMessage)
		})
	}

	t.Run("non-admin is rejected from admin routes", func(t *testing.T) {
		_, token := createTestUser(t, env.db, "plain@test.com", "password123", models.UserRoleUser)

		for _, path := range []string{"/api/users", "/api/chats", "/api/admin/audit", "/api/admin/export/users"} {
			resp := performRequest(t, env.app, http.MethodGet, path, nil, authHeaders(token))
			body := decodeJSONMap(t, resp)
			assertErrorResponse(t, resp.StatusCode, body, http.StatusForbidden, "admin access required")
		}
	})
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"name":     "Pixel Fan",
		"email":    "Fan@Test.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	data := dataMap(t, decodeJSONMap(t, resp))
	if token, _ := data["token"].(string); token == "" {
		t.Fatal("expected token after registration")
	}
	user, ok := data["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object, got %T", data["user"])
	}
	if user["email"] != "fan@test.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if user["role"] != string(models.UserRoleUser) {
		t.Fatalf("expected role user, got %v", user["role"])
	}

	t.Run("duplicate email is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"name":     "Again",
			"email":    "fan@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusConflict, "email already registered")
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "fan@test.com",
			"password": "wrong-password",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusUnauthorized, "invalid credentials")
	})

	t.Run("unknown email is rejected the same way", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "nobody@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusUnauthorized, "invalid credentials")
	})

	t.Run("correct password returns a session", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "fan@test.com",
			"password": "password123",
		}, nil)
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		token, _ := data["token"].(string)
		if token == "" {
			t.Fatal("expected token on login")
		}

		meResp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		assertStatus(t, meResp, http.StatusOK)
		me := dataMap(t, decodeJSONMap(t, meResp))
		if me["name"] != "Pixel Fan" {
			t.Fatalf("expected name %q, got %v", "Pixel Fan", me["name"])
		}
	})

	if rows := env.auditRows(t, services.AuditUserLoginFailed); len(rows) != 1 {
		t.Fatalf("expected one failed login audit row, got %d", len(rows))
	}
}

func TestLoginDeactivatedUser(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "gone@test.com", "password123", models.UserRoleUser)

	reason := "payment overdue"
	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"active":              false,
		"deactivation_reason": reason,
	}).Error; err != nil {
		t.Fatalf("failed deactivating user: %v", err)
	}

	t.Run("login reports the reason", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "gone@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusForbidden, "account deactivated")

		data := dataMap(t, body)
		if data["reason"] != reason {
			t.Fatalf("expected reason %q, got %v", reason, data["reason"])
		}
	})

	t.Run("existing tokens stop working", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusForbidden, "account deactivated")
	})
}

func TestUpdateMeAndChangePassword(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "me@test.com", "password123", models.UserRoleUser)
	createTestUser(t, env.db, "taken@test.com", "password123", models.UserRoleUser)

	t.Run("update name", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"name": "Renamed",
		}, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		if data["name"] != "Renamed" {
			t.Fatalf("expected name Renamed, got %v", data["name"])
		}
	})

	t.Run("email already in use", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"email": "taken@test.com",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusConflict, "email already registered")
	})

	t.Run("empty update", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "no valid fields to update")
	})

	t.Run("wrong old password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
			"oldPassword": "nope-nope",
			"newPassword": "newpassword123",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "oldPassword is incorrect")
	})

	t.Run("password changed", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
			"oldPassword": "password123",
			"newPassword": "newpassword123",
		}, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		var user models.User
		if err := env.db.First(&user, "email = ?", "me@test.com").Error; err != nil {
			t.Fatalf("failed loading user: %v", err)
		}
		if !utils.CheckPassword("newpassword123", user.PasswordHash) {
			t.Fatal("expected stored hash to match the new password")
		}
	})
}
