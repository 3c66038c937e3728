package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptionService(t *testing.T) {
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	svc, err := NewEncryptionService(key)
	if err != nil {
		t.Fatalf("Failed to create encryption service: %v", err)
	}

	t.Run("seal and open cookie", func(t *testing.T) {
		plaintext := "session=abc123; theme=dark"

		sealed, err := svc.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if !IsSealed(sealed) {
			t.Errorf("sealed value %q lacks prefix", sealed)
		}
		if strings.Contains(sealed, "abc123") {
			t.Error("sealed value leaks plaintext")
		}
		if strings.ContainsAny(sealed, " \n") {
			t.Error("sealed value must fit on one log line")
		}

		opened, err := svc.Open(sealed)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if opened != plaintext {
			t.Errorf("Open() = %q, want %q", opened, plaintext)
		}
	})

	t.Run("empty string stays empty", func(t *testing.T) {
		sealed, err := svc.Seal("")
		if err != nil || sealed != "" {
			t.Errorf("Seal(\"\") = %q, %v", sealed, err)
		}
	})

	t.Run("plain values pass through open", func(t *testing.T) {
		opened, err := svc.Open("legacy=value")
		if err != nil || opened != "legacy=value" {
			t.Errorf("Open(plain) = %q, %v", opened, err)
		}
	})

	t.Run("random nonce", func(t *testing.T) {
		a, _ := svc.Seal("same")
		b, _ := svc.Seal("same")
		if a == b {
			t.Error("same plaintext should produce different sealed values")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		sealed, _ := svc.Seal("secret")
		otherKey, _ := GenerateKey(32)
		other, _ := NewEncryptionService(otherKey)

		if _, err := other.Open(sealed); !errors.Is(err, ErrKeyMismatch) {
			t.Errorf("expected ErrKeyMismatch, got %v", err)
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		sealed, _ := svc.Seal("secret")
		// Flip a character inside the nonce.
		i := len(SealedPrefix) + len(svc.KeyID()) + 1 + 4
		swap := byte('A')
		if sealed[i] == 'A' {
			swap = 'B'
		}
		tampered := sealed[:i] + string(swap) + sealed[i+1:]

		if _, err := svc.Open(tampered); err == nil {
			t.Error("expected error for tampered value")
		}
	})

	t.Run("malformed values", func(t *testing.T) {
		tests := []string{
			SealedPrefix + "nokeyseparator",
			SealedPrefix + svc.KeyID() + ":!!!",
			SealedPrefix + svc.KeyID() + ":YWJj",
		}
		for _, value := range tests {
			if _, err := svc.Open(value); !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Open(%q) error = %v, want ErrInvalidCiphertext", value, err)
			}
		}
	})
}

func TestNewEncryptionService(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		if _, err := NewEncryptionService(make([]byte, size)); err != nil {
			t.Errorf("%d-byte key rejected: %v", size, err)
		}
	}
	for _, size := range []int{0, 8, 15, 17, 31, 33, 64} {
		if _, err := NewEncryptionService(make([]byte, size)); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%d-byte key: expected ErrInvalidKey, got %v", size, err)
		}
	}
}

func TestNewEncryptionServiceFromString(t *testing.T) {
	keyStr, err := GenerateKeyString(32)
	if err != nil {
		t.Fatalf("GenerateKeyString failed: %v", err)
	}

	svc, err := NewEncryptionServiceFromString(keyStr + "\n")
	if err != nil {
		t.Fatalf("NewEncryptionServiceFromString failed: %v", err)
	}
	sealed, _ := svc.Seal("c=1")
	if opened, _ := svc.Open(sealed); opened != "c=1" {
		t.Errorf("round trip failed: %q", opened)
	}

	if _, err := NewEncryptionServiceFromString("not-valid-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestKeyID(t *testing.T) {
	key1, _ := GenerateKey(32)
	key2, _ := GenerateKey(32)
	svc1, _ := NewEncryptionService(key1)
	svc1b, _ := NewEncryptionService(key1)
	svc2, _ := NewEncryptionService(key2)

	if svc1.KeyID() == "" {
		t.Error("KeyID should not be empty")
	}
	if strings.Contains(svc1.KeyID(), ":") {
		t.Error("KeyID must not contain the separator")
	}
	if svc1.KeyID() != svc1b.KeyID() {
		t.Error("same key should produce same KeyID")
	}
	if svc1.KeyID() == svc2.KeyID() {
		t.Error("different keys should produce different KeyIDs")
	}
}

func TestGenerateKey(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		key, err := GenerateKey(size)
		if err != nil || len(key) != size {
			t.Errorf("GenerateKey(%d) = %d bytes, %v", size, len(key), err)
		}
	}
	if _, err := GenerateKey(64); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GenerateKey(64) should return ErrInvalidKey, got %v", err)
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("unexpected hash format %q", hash)
	}

	tests := []struct {
		name     string
		user     string
		password string
		want     bool
	}{
		{"correct", "admin", "hunter2", true},
		{"wrong password", "admin", "hunter3", false},
		{"wrong user", "root", "hunter2", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckCredentials("admin", hash, tt.user, tt.password); got != tt.want {
				t.Errorf("CheckCredentials() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
}

func BenchmarkSeal(b *testing.B) {
	key, _ := GenerateKey(32)
	svc, _ := NewEncryptionService(key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Seal("session=1234567890abcdefghijklmnopqrstuvwxyz")
	}
}
