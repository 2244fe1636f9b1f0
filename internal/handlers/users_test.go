package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
)

func TestUsersEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "admin@test.com", "password123", models.UserRoleAdmin)
	customer, customerToken := createTestUser(t, env.db, "customer@test.com", "password123", models.UserRoleUser)
	createTestUser(t, env.db, "other@test.com", "password123", models.UserRoleUser)

	t.Run("list with search", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users?search=CUSTOMER", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		body := decodeJSONMap(t, resp)

		users := dataList(t, body)
		if len(users) != 1 {
			t.Fatalf("expected 1 user, got %d", len(users))
		}
		pagination, ok := body["pagination"].(map[string]any)
		if !ok || pagination["total"] != float64(1) {
			t.Fatalf("expected pagination total 1, got %v", body["pagination"])
		}
	})

	t.Run("list rejects bad active filter", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users?active=maybe", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "active must be true or false")
	})

	t.Run("get unknown user", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users/00000000-0000-0000-0000-000000000001", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusNotFound, "user not found")
	})

	t.Run("get rejects malformed id", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/users/not-a-uuid", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid user id")
	})

	t.Run("set drive folder url", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"driveFolderUrl": "https://drive.example.com/folders/abc",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		if data["driveFolderUrl"] != "https://drive.example.com/folders/abc" {
			t.Fatalf("expected drive folder url to be stored, got %v", data["driveFolderUrl"])
		}
	})

	t.Run("reject relative drive folder url", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"driveFolderUrl": "folders/abc",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "driveFolderUrl must be an absolute http(s) URL")
	})

	t.Run("clear drive folder url", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"driveFolderUrl": "",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		var stored models.User
		env.db.First(&stored, "id = ?", customer.ID)
		if stored.DriveFolderURL != nil {
			t.Fatalf("expected drive folder url to be cleared, got %q", *stored.DriveFolderURL)
		}
	})

	t.Run("reject invalid role", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"role": "superuser",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid role")
	})

	t.Run("admin cannot demote self", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+admin.ID.String(), map[string]any{
			"role": "user",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "cannot remove your own admin role")
	})

	t.Run("admin cannot deactivate self", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+admin.ID.String()+"/deactivate", map[string]any{
			"reason": "testing",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "cannot deactivate your own account")
	})

	t.Run("deactivate requires a reason", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String()+"/deactivate", map[string]any{
			"reason": "  ",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "reason is required")
	})

	t.Run("deactivate then activate", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String()+"/deactivate", map[string]any{
			"reason": "chargeback",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		if data["active"] != false {
			t.Fatalf("expected active=false, got %v", data["active"])
		}

		meResp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(customerToken))
		assertStatus(t, meResp, http.StatusForbidden)

		listResp := performRequest(t, env.app, http.MethodGet, "/api/users?active=false", nil, authHeaders(adminToken))
		assertStatus(t, listResp, http.StatusOK)
		if users := dataList(t, decodeJSONMap(t, listResp)); len(users) != 1 {
			t.Fatalf("expected 1 inactive user, got %d", len(users))
		}

		resp = performRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String()+"/activate", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		var stored models.User
		env.db.First(&stored, "id = ?", customer.ID)
		if !stored.Active || stored.DeactivationReason != nil {
			t.Fatalf("expected active user without reason, got active=%v reason=%v", stored.Active, stored.DeactivationReason)
		}

		meResp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(customerToken))
		assertStatus(t, meResp, http.StatusOK)
	})

	t.Run("admin cannot delete self", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/users/"+admin.ID.String(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "cannot delete your own account")
	})

	t.Run("delete user", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/users/"+customer.ID.String(), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/users/"+customer.ID.String(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusNotFound, "user not found")
	})

	if rows := env.auditRows(t, services.AuditUserDeactivate); len(rows) != 1 {
		t.Fatalf("expected one deactivation audit row, got %d", len(rows))
	}
}

func TestTextLimitsCountCharacters(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", "password123", models.UserRoleAdmin)
	customer, _ := createTestUser(t, env.db, "customer@test.com", "password123", models.UserRoleUser)

	t.Run("register accepts a long accented name", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"name":     strings.Repeat("é", maxNameLength),
			"email":    "joao@test.com",
			"password": "password123",
		}, nil)
		assertStatus(t, resp, http.StatusCreated)
	})

	t.Run("admin renames with accented text", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"name": strings.Repeat("ç", maxNameLength),
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String(), map[string]any{
			"name": strings.Repeat("ç", maxNameLength+1),
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "name is too long")
	})

	t.Run("deactivation reason in portuguese", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/users/"+customer.ID.String()+"/deactivate", map[string]any{
			"reason": strings.Repeat("ã", maxDeactivationReasonLength),
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
	})
}
