package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	encryptionKey []byte

	ErrEncryptionNotConfigured = errors.New("encryption not configured")
	ErrCiphertextTooShort      = errors.New("ciphertext too short")
)

const encryptionSalt = "pixelart-totp-encryption"

// ConfigureEncryption derives the AES-256 key used for TOTP secrets at rest.
func ConfigureEncryption(secret string) {
	if secret == "" {
		return
	}
	reader := hkdf.New(sha256.New, []byte(secret), []byte(encryptionSalt), []byte("encryption-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("failed to derive encryption key: %v", err))
	}
	encryptionKey = key
}

func newGCM() (cipher.AEAD, error) {
	if encryptionKey == nil {
		return nil, ErrEncryptionNotConfigured
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret seals plaintext and returns base64(nonce || ciphertext).
func EncryptSecret(plaintext string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func DecryptSecret(encoded string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
