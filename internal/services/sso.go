package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/config"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/models"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	ProviderGoogle = "google"
	ProviderLocal  = "local"

	oauthStateTTL = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid oauth state")

type SSOProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// GoogleAuthenticator is the part of the Google sign-in flow that talks to Google.
type GoogleAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*SSOProfile, error)
}

type GoogleOIDC struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleOIDC discovers the issuer's endpoints and keys.
func NewGoogleOIDC(ctx context.Context, cfg config.GoogleConfig) (*GoogleOIDC, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer: %w", err)
	}

	oauthCfg := cfg.ClientConfig(ctx)
	oauthCfg.Endpoint = provider.Endpoint()

	return &GoogleOIDC{
		oauth:    oauthCfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (g *GoogleOIDC) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (g *GoogleOIDC) Exchange(ctx context.Context, code string) (*SSOProfile, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": ProviderGoogle,
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id_token claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, errors.New("google account email is not verified")
	}

	return &SSOProfile{
		Provider:       ProviderGoogle,
		ProviderUserID: idToken.Subject,
		Email:          claims.Email,
		Name:           claims.Name,
	}, nil
}

type SSOService struct {
	DB     *gorm.DB
	secret []byte
	now    func() time.Time
}

func NewSSOService(db *gorm.DB, stateSecret string) *SSOService {
	return &SSOService{DB: db, secret: []byte(stateSecret), now: time.Now}
}

// NewState returns a signed, expiring OAuth state value. Being stateless it
// works across several server instances.
func (s *SSOService) NewState() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	payload := hex.EncodeToString(nonce) + ":" + strconv.FormatInt(s.now().Add(oauthStateTTL).Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + s.sign(encoded), nil
}

func (s *SSOService) VerifyState(state string) error {
	encoded, sig, ok := strings.Cut(state, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(s.sign(encoded))) {
		return ErrInvalidState
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrInvalidState
	}
	_, expRaw, ok := strings.Cut(string(raw), ":")
	if !ok {
		return ErrInvalidState
	}
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return ErrInvalidState
	}
	return nil
}

func (s *SSOService) sign(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// FindOrCreateUser matches the profile to an account by email, creating a
// customer account on first sign-in.
func (s *SSOService) FindOrCreateUser(ctx context.Context, profile *SSOProfile) (*models.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, false, invalid("email is required")
	}

	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error
	if err == nil {
		if user.AuthProvider == nil {
			provider := profile.Provider
			if err := s.DB.WithContext(ctx).Model(&user).Update("auth_provider", provider).Error; err != nil {
				logger.Warn("sso_update_auth_provider_failed", map[string]interface{}{
					"user_id":  user.ID.String(),
					"provider": profile.Provider,
				})
			}
		}
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	provider := profile.Provider
	user = models.User{
		Name:         name,
		Email:        email,
		Role:         models.UserRoleUser,
		Active:       true,
		AuthProvider: &provider,
	}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, false, err
	}

	logger.Info("sso_user_created", map[string]interface{}{
		"user_id":  user.ID.String(),
		"email":    user.Email,
		"provider": profile.Provider,
	})
	return &user, true, nil
}
