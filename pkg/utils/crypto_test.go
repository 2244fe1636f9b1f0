package utils

import (
	"errors"
	"testing"
)

func withEncryptionKey(t *testing.T, secret string) {
	t.Helper()
	original := encryptionKey
	t.Cleanup(func() { encryptionKey = original })
	encryptionKey = nil
	ConfigureEncryption(secret)
}

func TestConfigureEncryption(t *testing.T) {
	t.Run("empty secret does not set key", func(t *testing.T) {
		withEncryptionKey(t, "")
		if encryptionKey != nil {
			t.Error("expected encryption key to stay unset")
		}
	})

	t.Run("secret derives a 32 byte key", func(t *testing.T) {
		withEncryptionKey(t, "test-secret")
		if len(encryptionKey) != 32 {
			t.Errorf("expected 32 byte key, got %d", len(encryptionKey))
		}
	})
}

func TestEncryptDecryptSecret(t *testing.T) {
	withEncryptionKey(t, "roundtrip-secret")

	for _, plaintext := range []string{"", "JBSWY3DPEHPK3PXP", "hello 世界"} {
		sealed, err := EncryptSecret(plaintext)
		if err != nil {
			t.Fatalf("EncryptSecret(%q) failed: %v", plaintext, err)
		}
		if plaintext != "" && sealed == plaintext {
			t.Fatalf("expected ciphertext to differ from plaintext")
		}
		opened, err := DecryptSecret(sealed)
		if err != nil {
			t.Fatalf("DecryptSecret failed: %v", err)
		}
		if opened != plaintext {
			t.Fatalf("expected %q, got %q", plaintext, opened)
		}
	}
}

func TestEncryptSecretUsesFreshNonce(t *testing.T) {
	withEncryptionKey(t, "nonce-secret")

	a, err := EncryptSecret("same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptSecret("same")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected two encryptions of the same value to differ")
	}
}

func TestDecryptSecretErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		withEncryptionKey(t, "")
		if _, err := DecryptSecret("abc"); !errors.Is(err, ErrEncryptionNotConfigured) {
			t.Fatalf("expected ErrEncryptionNotConfigured, got %v", err)
		}
	})

	t.Run("short ciphertext", func(t *testing.T) {
		withEncryptionKey(t, "short-secret")
		if _, err := DecryptSecret("YWJj"); !errors.Is(err, ErrCiphertextTooShort) {
			t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		withEncryptionKey(t, "key-one")
		sealed, err := EncryptSecret("value")
		if err != nil {
			t.Fatal(err)
		}
		ConfigureEncryption("key-two")
		if _, err := DecryptSecret(sealed); err == nil {
			t.Fatal("expected decryption with a different key to fail")
		}
	})
}
