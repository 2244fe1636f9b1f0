package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/middleware"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/services"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

const (
	totpIssuer        = "Pixel Art Studio"
	recoveryCodeCount = 10
	qrCodeSize        = 256
)

type MFAHandler struct {
	auditor
	DB *gorm.DB
}

func NewMFAHandler(db *gorm.DB, audit *services.AuditService) *MFAHandler {
	return &MFAHandler{DB: db, auditor: auditor{Audit: audit}}
}

func (h *MFAHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var mfaCfg models.MFAConfig
	if err := h.DB.First(&mfaCfg, "user_id = ?", user.ID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading MFA status")
		}
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"totpEnabled":            false,
			"totpVerifiedAt":         nil,
			"recoveryCodesRemaining": 0,
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totpEnabled":            mfaCfg.TOTPEnabled,
		"totpVerifiedAt":         mfaCfg.TOTPVerifiedAt,
		"recoveryCodesRemaining": mfaCfg.RecoveryCount,
	})
}

// TOTPSetup stores a fresh, not yet enabled secret and returns it together
// with the otpauth URI and a PNG QR code of that URI.
func (h *MFAHandler) TOTPSetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var existing models.MFAConfig
	hasConfig := h.DB.First(&existing, "user_id = ?", user.ID).Error == nil
	if hasConfig && existing.TOTPEnabled {
		return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate TOTP secret")
	}

	encryptedSecret, err := utils.EncryptSecret(key.Secret())
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "mfa_encrypt_secret_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to encrypt TOTP secret")
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to render QR code")
	}

	if hasConfig {
		err = h.DB.Model(&existing).Updates(map[string]interface{}{
			"totp_secret":      encryptedSecret,
			"totp_enabled":     false,
			"totp_verified_at": nil,
		}).Error
	} else {
		err = h.DB.Create(&models.MFAConfig{UserID: user.ID, TOTPSecret: encryptedSecret}).Error
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to save TOTP config")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": key.Secret(),
		"qrUri":  key.URL(),
		"qrPng":  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

func (h *MFAHandler) TOTPVerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req totpCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	var mfaCfg models.MFAConfig
	if err := h.DB.First(&mfaCfg, "user_id = ?", user.ID).Error; err != nil || mfaCfg.TOTPSecret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP setup not started")
	}
	if mfaCfg.TOTPEnabled {
		return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
	}

	if !validateTOTP(&mfaCfg, req.Code) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid TOTP code")
	}

	codes, hashedCodes, err := generateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate recovery codes")
	}
	codesJSON, err := json.Marshal(hashedCodes)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to serialize recovery codes")
	}

	if err := h.DB.Model(&mfaCfg).Updates(map[string]interface{}{
		"totp_enabled":     true,
		"totp_verified_at": time.Now().UTC(),
		"recovery_codes":   string(codesJSON),
		"recovery_count":   len(codes),
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to enable TOTP")
	}

	logger.InfoWithUser(user.ID.String(), "mfa_totp_enabled", nil)
	h.audit(c, user, services.AuditMFAEnable, "user", user.ID.String(), nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"recoveryCodes": codes})
}

type disableTOTPRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// TOTPDisable requires the password, or a current TOTP code for accounts
// that never set one.
func (h *MFAHandler) TOTPDisable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var mfaCfg models.MFAConfig
	if err := h.DB.First(&mfaCfg, "user_id = ?", user.ID).Error; err != nil || !mfaCfg.TOTPEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not enabled")
	}

	var dbUser models.User
	if err := h.DB.First(&dbUser, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load user")
	}

	if dbUser.PasswordHash == "" {
		if req.Code == "" || !validateTOTP(&mfaCfg, strings.TrimSpace(req.Code)) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid TOTP code")
		}
	} else {
		if req.Password == "" {
			return utils.Error(c, fiber.StatusBadRequest, "password is required")
		}
		if !utils.CheckPassword(req.Password, dbUser.PasswordHash) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid password")
		}
	}

	if err := h.DB.Model(&mfaCfg).Updates(map[string]interface{}{
		"totp_enabled":     false,
		"totp_secret":      "",
		"totp_verified_at": nil,
		"recovery_codes":   "",
		"recovery_count":   0,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to disable TOTP")
	}

	logger.InfoWithUser(user.ID.String(), "mfa_totp_disabled", nil)
	h.audit(c, user, services.AuditMFADisable, "user", user.ID.String(), nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "TOTP disabled"})
}

type verifyMFARequest struct {
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

// Verify completes a login that returned mfaRequired. The code may be a
// TOTP code or one of the recovery codes; a recovery code is spent on use.
func (h *MFAHandler) Verify(c *fiber.Ctx) error {
	var req verifyMFARequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.MFAToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "mfaToken and code are required")
	}

	claims, err := utils.ValidateMFAToken(req.MFAToken)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired MFA token")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}
	if !user.Active {
		return middleware.DeactivatedResponse(c, &user)
	}

	var mfaCfg models.MFAConfig
	if err := h.DB.First(&mfaCfg, "user_id = ?", user.ID).Error; err != nil || !mfaCfg.TOTPEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not enabled")
	}

	if validateTOTP(&mfaCfg, req.Code) {
		if ok, err := consumeMFAToken(c, claims.ID); !ok {
			return err
		}
		return h.issueSession(c, &user, "totp")
	}

	stored, match, err := matchRecoveryCode(&mfaCfg, req.Code)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load recovery codes")
	}
	if match == -1 {
		logger.WarnWithUser(user.ID.String(), "mfa_verify_failed", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid code")
	}
	if ok, err := consumeMFAToken(c, claims.ID); !ok {
		return err
	}

	stored = append(stored[:match], stored[match+1:]...)
	updated, err := json.Marshal(stored)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to serialize recovery codes")
	}
	if err := h.DB.Model(&mfaCfg).Updates(map[string]interface{}{
		"recovery_codes": string(updated),
		"recovery_count": len(stored),
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update recovery codes")
	}
	logger.InfoWithUser(user.ID.String(), "mfa_recovery_used", map[string]interface{}{
		"remaining_codes": len(stored),
	})

	return h.issueSession(c, &user, "recovery")
}

// matchRecoveryCode returns the stored hashes and the index of the one that
// matches code, or -1.
func matchRecoveryCode(mfaCfg *models.MFAConfig, code string) ([]string, int, error) {
	if mfaCfg.RecoveryCodes == "" {
		return nil, -1, nil
	}
	var stored []string
	if err := json.Unmarshal([]byte(mfaCfg.RecoveryCodes), &stored); err != nil {
		return nil, -1, err
	}
	for i, hashed := range stored {
		if utils.CheckPassword(code, hashed) {
			return stored, i, nil
		}
	}
	return stored, -1, nil
}

func validateTOTP(mfaCfg *models.MFAConfig, code string) bool {
	secret, err := utils.DecryptSecret(mfaCfg.TOTPSecret)
	if err != nil {
		logger.Error("mfa_decrypt_secret_failed", err, map[string]interface{}{
			"user_id": mfaCfg.UserID.String(),
		})
		return false
	}
	return totp.Validate(code, secret)
}

func generateRecoveryCodes(count int) (plaintext []string, hashed []string, err error) {
	for i := 0; i < count; i++ {
		b := make([]byte, 5)
		if _, err := rand.Read(b); err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(b)
		plaintext = append(plaintext, code)

		hash, err := utils.HashPassword(code)
		if err != nil {
			return nil, nil, err
		}
		hashed = append(hashed, hash)
	}
	return plaintext, hashed, nil
}

// consumeMFAToken reports false after writing the error response when the
// token was already used or cannot be recorded.
func consumeMFAToken(c *fiber.Ctx, jti string) (bool, error) {
	fresh, err := utils.ConsumeJTI(c.UserContext(), jti)
	if err != nil {
		logger.Error("mfa_token_consume_failed", err, nil)
		return false, utils.Error(c, fiber.StatusInternalServerError, "failed to verify MFA token")
	}
	if !fresh {
		return false, utils.Error(c, fiber.StatusUnauthorized, "MFA token already used")
	}
	return true, nil
}
