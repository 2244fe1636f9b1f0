// Package downloadtoken issues signed, single-use links for artwork downloads
// that can be redeemed without a session.
package downloadtoken

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/nonce"
)

const DefaultTTL = 15 * time.Minute

var (
	ErrMalformed        = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrAlreadyUsed      = errors.New("token already used")
)

type Token struct {
	UserID    string `json:"uid"`
	Key       string `json:"key"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nce"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	used   nonce.Store
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	i.used = nonce.NewMemoryStoreWithClock(func() time.Time { return i.now() })
	return i
}

// UseStore replaces the in-process record of redeemed nonces, typically with
// a Redis store shared by every instance.
func (i *Issuer) UseStore(store nonce.Store) {
	if store != nil {
		i.used = store
	}
}

// Issue returns a token for the object key owned by userID and its expiry.
func (i *Issuer) Issue(userID, key string) (string, time.Time, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, err
	}

	expiresAt := i.now().Add(i.ttl)
	tok := Token{
		UserID:    userID,
		Key:       key,
		ExpiresAt: expiresAt.Unix(),
		Nonce:     hex.EncodeToString(nonce),
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return "", time.Time{}, err
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." + i.sign(data), expiresAt, nil
}

// Validate checks signature and expiry without consuming the token.
func (i *Issuer) Validate(tokenString string) (*Token, error) {
	dataPart, sigPart, ok := strings.Cut(tokenString, ".")
	if !ok || dataPart == "" || sigPart == "" {
		return nil, ErrMalformed
	}

	decoded, err := base64.RawURLEncoding.DecodeString(dataPart)
	if err != nil {
		return nil, ErrMalformed
	}
	if !hmac.Equal([]byte(i.sign(decoded)), []byte(sigPart)) {
		return nil, ErrInvalidSignature
	}

	var tok Token
	if err := json.Unmarshal(decoded, &tok); err != nil {
		return nil, ErrMalformed
	}
	if i.now().Unix() > tok.ExpiresAt {
		return nil, ErrExpired
	}
	return &tok, nil
}

// Redeem validates the token and marks its nonce used until it expires.
func (i *Issuer) Redeem(ctx context.Context, tokenString string) (*Token, error) {
	tok, err := i.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	ttl := time.Unix(tok.ExpiresAt, 0).Sub(i.now()) + time.Second
	claimed, err := i.used.Claim(ctx, tok.Nonce, ttl)
	if err != nil {
		return nil, fmt.Errorf("recording token use: %w", err)
	}
	if !claimed {
		return nil, ErrAlreadyUsed
	}
	return tok, nil
}

// Prune forgets used nonces whose tokens have expired anyway. Stores that
// expire entries themselves report zero.
func (i *Issuer) Prune() int {
	if pruner, ok := i.used.(interface{ Prune() int }); ok {
		return pruner.Prune()
	}
	return 0
}

// RunCleanup prunes on every tick until ctx is done.
func (i *Issuer) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Prune()
		}
	}
}

func (i *Issuer) sign(data []byte) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
