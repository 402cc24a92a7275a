// Package crypto encrypts provider credentials at rest and verifies API tokens.
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

	"golang.org/x/crypto/hkdf"
)

const encryptionInfo = "calmerge-encryption"

// ErrEmptyKey is returned when no key material is supplied.
var ErrEmptyKey = errors.New("encryption key is empty")

// Encryptor seals refresh tokens with AES-256-GCM.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor accepts a base64-encoded 32-byte key, or any other secret from
// which a key is derived with HKDF-SHA256.
func NewEncryptor(keyOrSecret string) (*Encryptor, error) {
	if keyOrSecret == "" {
		return nil, ErrEmptyKey
	}

	key, err := base64.StdEncoding.DecodeString(keyOrSecret)
	if err != nil || len(key) != 32 {
		key, err = deriveKey([]byte(keyOrSecret), encryptionInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, make([]byte, 32), []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt returns nonce || ciphertext.
func (e *Encryptor) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(sealed []byte) (string, error) {
	n := e.aead.NonceSize()
	if len(sealed) < n {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
