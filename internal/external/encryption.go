package external

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryptor is the field-level encryption collaborator spec.md §6
// substitutes for stored payment tokens: "encrypt(plaintext) → opaque /
// decrypt(opaque) → plaintext used by payment-details persistence;
// opaque strings are stored verbatim and must round-trip." The core
// never inspects the opaque representation.
type Encryptor interface {
	Encrypt(plaintext []byte) (opaque string, err error)
	Decrypt(opaque string) (plaintext []byte, err error)
}

// ChaCha20Poly1305Encryptor implements Encryptor with an AEAD cipher,
// adapted from the teacher's pkg/utils/crypto.go bcrypt helper: that
// code one-way hashes passwords, but the payment-token contract needs
// a reversible round trip, so this uses golang.org/x/crypto's
// authenticated symmetric cipher instead of bcrypt.
type ChaCha20Poly1305Encryptor struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewChaCha20Poly1305Encryptor builds an Encryptor from a 32-byte key.
func NewChaCha20Poly1305Encryptor(key []byte) (*ChaCha20Poly1305Encryptor, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20Poly1305Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// nonce-prefixed ciphertext, base64-encoded for verbatim storage.
func (e *ChaCha20Poly1305Encryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *ChaCha20Poly1305Encryptor) Decrypt(opaque string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return nil, err
	}
	nonceSize := e.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.New("external: opaque payload shorter than nonce")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	return e.aead.Open(nil, nonce, ciphertext, nil)
}
