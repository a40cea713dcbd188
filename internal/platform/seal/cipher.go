// Package seal encrypts stored document payloads with AES-256-GCM under a
// versioned keyring so keys can be rotated without rewriting old rows.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher seals byte payloads. Output is the nonce followed by the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher for a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("seal: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext. aad is authenticated but not stored, so the same
// value must be passed to Open.
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("seal: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func (c *Cipher) Open(data, aad []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("seal: ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, data[:n], data[n:], aad)
	if err != nil {
		return nil, fmt.Errorf("seal: open: %w", err)
	}
	return plaintext, nil
}

// ParseKey decodes a 64 character hex key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("seal: key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("seal: key must be %d bytes (%d hex chars), got %d bytes", KeySize, 2*KeySize, len(key))
	}
	return key, nil
}
