package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/pquerna/otp/totp"
)

// enableTOTP runs the setup flow and returns the shared secret and recovery codes.
func enableTOTP(t *testing.T, env *testEnv, token string) (string, []string) {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/setup", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	setup := dataMap(t, decodeJSONMap(t, resp))

	secret, _ := setup["secret"].(string)
	if secret == "" {
		t.Fatal("expected TOTP secret in setup response")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/verify-setup", map[string]any{
		"code": code,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, decodeJSONMap(t, resp))
	rawCodes, _ := data["recoveryCodes"].([]any)
	codes := make([]string, 0, len(rawCodes))
	for _, c := range rawCodes {
		codes = append(codes, c.(string))
	}
	return secret, codes
}

func loginForMFAToken(t *testing.T, env *testEnv, email, password string) string {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))

	if required, _ := data["mfaRequired"].(bool); !required {
		t.Fatalf("expected mfaRequired=true, got %+v", data)
	}
	mfaToken, _ := data["mfaToken"].(string)
	if mfaToken == "" {
		t.Fatal("expected mfaToken to be non-empty")
	}
	if _, ok := data["token"]; ok {
		t.Fatal("session token must not be issued before the second factor")
	}
	return mfaToken
}

func TestMFAHandler_Status_NoMFA(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "mfa-status@test.com", "password123", models.UserRoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/mfa/status", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, decodeJSONMap(t, resp))
	if data["totpEnabled"] != false {
		t.Fatalf("expected totpEnabled=false, got %v", data["totpEnabled"])
	}
}

func TestMFAHandler_TOTPSetup(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "mfa-setup@test.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/setup", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, decodeJSONMap(t, resp))
	if uri, _ := data["qrUri"].(string); !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("expected otpauth URI, got %v", data["qrUri"])
	}
	if png, _ := data["qrPng"].(string); !strings.HasPrefix(png, "data:image/png;base64,") {
		t.Fatal("expected QR code data URI")
	}

	var mfaCfg models.MFAConfig
	if err := env.db.First(&mfaCfg, "user_id = ?", user.ID).Error; err != nil {
		t.Fatalf("expected MFA config row: %v", err)
	}
	if mfaCfg.TOTPEnabled {
		t.Fatal("TOTP must stay disabled until the first code is verified")
	}
	if mfaCfg.TOTPSecret == data["secret"] {
		t.Fatal("expected the stored secret to be encrypted")
	}
}

func TestMFAHandler_TOTPVerifySetup_InvalidCode(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "mfa-invalid@test.com", "password123", models.UserRoleUser)

	performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/setup", map[string]any{}, authHeaders(token))

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/verify-setup", map[string]any{
		"code": "000000",
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid TOTP code")
}

func TestMFAHandler_LoginWithMFA(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "mfa-login@test.com", "password123", models.UserRoleUser)

	secret, codes := enableTOTP(t, env, token)
	if len(codes) != 10 {
		t.Fatalf("expected 10 recovery codes, got %d", len(codes))
	}

	mfaToken := loginForMFAToken(t, env, "mfa-login@test.com", "password123")
	code, _ := totp.GenerateCode(secret, time.Now())

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/verify", map[string]any{
		"mfaToken": mfaToken,
		"code":     code,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))
	if _, ok := data["token"].(string); !ok {
		t.Fatal("expected JWT token in response")
	}

	t.Run("mfa token cannot be replayed", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/verify", map[string]any{
			"mfaToken": mfaToken,
			"code":     code,
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusUnauthorized, "MFA token already used")
	})

	t.Run("mfa token is not a session token", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(mfaToken))
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestMFAHandler_RecoveryCode(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "mfa-recovery@test.com", "password123", models.UserRoleUser)

	_, codes := enableTOTP(t, env, token)

	mfaToken := loginForMFAToken(t, env, "mfa-recovery@test.com", "password123")
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/verify", map[string]any{
		"mfaToken": mfaToken,
		"code":     codes[0],
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	var mfaCfg models.MFAConfig
	env.db.First(&mfaCfg, "user_id = ?", user.ID)
	if mfaCfg.RecoveryCount != 9 {
		t.Fatalf("expected 9 remaining recovery codes, got %d", mfaCfg.RecoveryCount)
	}

	t.Run("used recovery code is rejected", func(t *testing.T) {
		mfaToken := loginForMFAToken(t, env, "mfa-recovery@test.com", "password123")
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/verify", map[string]any{
			"mfaToken": mfaToken,
			"code":     codes[0],
		}, nil)
		body := decodeJSONMap(t, resp)
		assertErrorResponse(t, resp.StatusCode, body, http.StatusUnauthorized, "invalid code")
	})
}

func TestMFAHandler_TOTPDisable(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "mfa-disable@test.com", "password123", models.UserRoleUser)

	enableTOTP(t, env, token)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/disable", map[string]any{
		"password": "wrong-password",
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertErrorResponse(t, resp.StatusCode, body, http.StatusBadRequest, "invalid password")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/mfa/totp/disable", map[string]any{
		"password": "password123",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "mfa-disable@test.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))
	if _, ok := data["token"].(string); !ok {
		t.Fatal("expected a direct session once TOTP is disabled")
	}

	if rows := env.auditRows(t, services.AuditMFADisable); len(rows) != 1 {
		t.Fatalf("expected one mfa.disable audit row, got %d", len(rows))
	}
}
