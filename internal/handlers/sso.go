package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SSOHandler runs the Google sign-in redirect flow. Google is nil when the
// provider is not configured.
type SSOHandler struct {
	auditor
	DB          *gorm.DB
	Google      services.GoogleAuthenticator
	SSO         *services.SSOService
	FrontendURL string
}

func NewSSOHandler(db *gorm.DB, google services.GoogleAuthenticator, sso *services.SSOService, frontendURL string, audit *services.AuditService) *SSOHandler {
	return &SSOHandler{
		DB:          db,
		Google:      google,
		SSO:         sso,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		auditor:     auditor{Audit: audit},
	}
}

func (h *SSOHandler) GoogleLogin(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusNotFound, "google sign-in is not enabled")
	}

	state, err := h.SSO.NewState()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"redirectUrl": h.Google.AuthCodeURL(state),
	})
}

func (h *SSOHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusNotFound, "google sign-in is not enabled")
	}

	if providerErr := c.Query("error"); providerErr != "" {
		return h.redirectError(c, providerErr)
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectError(c, "authorization code is required")
	}
	if err := h.SSO.VerifyState(c.Query("state")); err != nil {
		logger.Warn("sso_invalid_state", map[string]interface{}{
			"ip": c.IP(),
		})
		return h.redirectError(c, "invalid state")
	}

	profile, err := h.Google.Exchange(c.UserContext(), code)
	if err != nil {
		logger.Error("sso_exchange_failed", err, map[string]interface{}{
			"provider": services.ProviderGoogle,
		})
		return h.redirectError(c, "google sign-in failed")
	}

	user, created, err := h.SSO.FindOrCreateUser(c.UserContext(), profile)
	if err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			return h.redirectError(c, validation.Message)
		}
		logger.Error("sso_user_lookup_failed", err, map[string]interface{}{
			"email": profile.Email,
		})
		return h.redirectError(c, "failed to sign in")
	}
	if created {
		h.audit(c, user, services.AuditUserRegister, "user", user.ID.String(), map[string]interface{}{
			"email":    user.Email,
			"provider": services.ProviderGoogle,
		})
	}

	if !user.Active {
		reason := ""
		if user.DeactivationReason != nil {
			reason = *user.DeactivationReason
		}
		return c.Redirect(h.FrontendURL + "/login?error=" + url.QueryEscape("account deactivated") + "&reason=" + url.QueryEscape(reason))
	}

	if totpEnabled(h.DB, user.ID) {
		mfaToken, err := utils.GenerateMFAToken(user.ID)
		if err != nil {
			return h.redirectError(c, "failed to generate MFA token")
		}
		return c.Redirect(h.FrontendURL + "/auth/callback?mfa_required=true&mfa_token=" + url.QueryEscape(mfaToken))
	}

	return h.redirectSession(c, user)
}

func (h *SSOHandler) redirectSession(c *fiber.Ctx, user *models.User) error {
	token, err := utils.GenerateToken(user)
	if err != nil {
		return h.redirectError(c, "failed to generate token")
	}

	logger.Info("user_login", map[string]interface{}{
		"user_id": user.ID.String(),
		"method":  services.ProviderGoogle,
		"ip":      c.IP(),
	})
	h.audit(c, user, services.AuditUserLogin, "user", user.ID.String(), map[string]interface{}{
		"method": services.ProviderGoogle,
	})

	return c.Redirect(h.FrontendURL + "/auth/callback?token=" + url.QueryEscape(token))
}

func (h *SSOHandler) redirectError(c *fiber.Ctx, message string) error {
	return c.Redirect(h.FrontendURL + "/login?error=" + url.QueryEscape(message))
}
