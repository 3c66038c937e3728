// Package crypto seals collected values at rest and handles admin
// password hashes.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a value produced by Seal.
const SealedPrefix = "sealed:"

var (
	// ErrInvalidKey is returned when the key is not 16, 24 or 32 bytes
	ErrInvalidKey = errors.New("invalid encryption key: must be 16, 24, or 32 bytes")

	// ErrInvalidCiphertext is returned when a sealed value is malformed
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrDecryptionFailed is returned when authentication fails
	ErrDecryptionFailed = errors.New("decryption failed: authentication failed")

	// ErrKeyMismatch is returned when a value was sealed under another key
	ErrKeyMismatch = errors.New("value sealed with a different key")
)

// EncryptionService seals strings with AES-GCM. Sealed values look like
// "sealed:<key id>:<base64 nonce+ciphertext>" so that plain values written
// before a key was configured can still be read back.
type EncryptionService struct {
	gcm   cipher.AEAD
	keyID string
}

// NewEncryptionService creates a service for a raw AES key.
func NewEncryptionService(key []byte) (*EncryptionService, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sum := sha256.Sum256(key)
	return &EncryptionService{
		gcm:   gcm,
		keyID: base64.RawURLEncoding.EncodeToString(sum[:6]),
	}, nil
}

// NewEncryptionServiceFromString creates a service from a base64 key, as
// printed by `xsslab -gen-key`.
func NewEncryptionServiceFromString(encodedKey string) (*EncryptionService, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return NewEncryptionService(key)
}

// Seal encrypts plaintext. The empty string stays empty.
func (s *EncryptionService) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return SealedPrefix + s.keyID + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (s *EncryptionService) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	keyID, payload, ok := strings.Cut(strings.TrimPrefix(value, SealedPrefix), ":")
	if !ok {
		return "", ErrInvalidCiphertext
	}
	if keyID != s.keyID {
		return "", ErrKeyMismatch
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	nonceSize := s.gcm.NonceSize()
	if len(raw) < nonceSize+s.gcm.Overhead() {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := s.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// KeyID identifies the key without revealing it
func (s *EncryptionService) KeyID() string {
	return s.keyID
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// GenerateKey returns size random bytes. Size must be 16, 24 or 32.
func GenerateKey(size int) ([]byte, error) {
	if size != 16 && size != 24 && size != 32 {
		return nil, ErrInvalidKey
	}

	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyString returns a random key encoded as base64
func GenerateKeyString(size int) (string, error) {
	key, err := GenerateKey(size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
