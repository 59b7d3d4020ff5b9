package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewEncryptor(t *testing.T) {
	t.Parallel()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		_, err := NewEncryptor("")
		if !errors.Is(err, ErrMissingKey) {
			t.Fatalf("expected ErrMissingKey, got %v", err)
		}
	})

	t.Run("short key", func(t *testing.T) {
		t.Parallel()

		_, err := NewEncryptor("too-short")
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		t.Parallel()

		enc, err := NewEncryptor(testKey)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if enc == nil {
			t.Fatal("expected encryptor instance")
		}
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	secrets := []string{
		"",
		"EAAGm0PX4ZCpsBO1234567890",
		strings.Repeat("long-token-", 100),
	}
	for _, secret := range secrets {
		sealed, err := enc.Encrypt(secret)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", secret, err)
		}
		if sealed == secret && secret != "" {
			t.Errorf("ciphertext equals plaintext for %q", secret)
		}

		opened, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if opened != secret {
			t.Errorf("round trip = %q, want %q", opened, secret)
		}
	}
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	first, err := enc.Encrypt("same value")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := enc.Encrypt("same value")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if first == second {
		t.Error("two encryptions of the same value produced identical output")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	if _, err := enc.Decrypt("not base64 at all!!!"); err == nil {
		t.Error("Decrypt() accepted invalid base64")
	}

	tooShort := base64.URLEncoding.EncodeToString([]byte("abc"))
	if _, err := enc.Decrypt(tooShort); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Decrypt(short) error = %v, want ErrCiphertextTooShort", err)
	}

	// Valid length, wrong bytes.
	garbage := base64.URLEncoding.EncodeToString([]byte(strings.Repeat("x", 40)))
	if _, err := enc.Decrypt(garbage); err == nil {
		t.Error("Decrypt() accepted tampered ciphertext")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	other, err := NewEncryptor(strings.Repeat("z", 32))
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	sealed, err := enc.Encrypt("channel token")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := other.Decrypt(sealed); err == nil {
		t.Error("Decrypt() with wrong key succeeded")
	}
}
