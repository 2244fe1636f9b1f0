package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/nonce"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const mfaTokenExpiry = 5 * time.Minute

const (
	mfaTokenType = "mfa_challenge"
	mfaAudience  = "mfa"
)

// MFAClaims is the short-lived token handed out between password check and
// second-factor verification. It cannot be used as a session token.
type MFAClaims struct {
	UserID    uuid.UUID `json:"userId"`
	TokenType string    `json:"tokenType"`
	jwt.RegisteredClaims
}

func GenerateMFAToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := MFAClaims{
		UserID:    userID,
		TokenType: mfaTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(mfaTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{mfaAudience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateMFAToken(tokenString string) (*MFAClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MFAClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*MFAClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid MFA token")
	}
	if claims.TokenType != mfaTokenType {
		return nil, fmt.Errorf("invalid token type")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("missing token ID")
	}

	return claims, nil
}

var jtiStore nonce.Store = nonce.NewMemoryStore()

// ConfigureJTIStore shares consumed MFA token IDs across instances.
func ConfigureJTIStore(store nonce.Store) {
	if store != nil {
		jtiStore = store
	}
}

// ConsumeJTI marks an MFA token as used. It returns false if it already was.
func ConsumeJTI(ctx context.Context, jti string) (bool, error) {
	return jtiStore.Claim(ctx, "mfa:"+jti, mfaTokenExpiry)
}
