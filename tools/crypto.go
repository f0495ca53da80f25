package tools

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// TokenCipher protects access tokens at rest. Accounts only ever store
// the ciphertext this produces; plaintext lives in memory just long
// enough for an outbound call.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher derives a cipher from the configured secret. Any
// non-empty secret works; the actual key is its SHA-256.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("token cipher: secret vazio")
	}
	sum := sha256.Sum256([]byte(secret))
	return &TokenCipher{key: sum[:]}, nil
}

// Encrypt seals plaintext with XChaCha20-Poly1305 and returns
// base64(nonce || ciphertext).
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("token cipher: base64 inválido: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("token cipher: ciphertext curto demais")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("token cipher: open: %w", err)
	}
	return string(plain), nil
}
