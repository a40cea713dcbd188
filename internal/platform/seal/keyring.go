package seal

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Sealed values look like "v<version>:<base64 nonce+ciphertext>".
const (
	versionPrefix    = "v"
	versionSeparator = ":"
)

// Keyring seals with its current key and opens values sealed by any key it
// holds.
type Keyring struct {
	mu      sync.RWMutex
	current int
	ciphers map[int]*Cipher
}

// NewKeyring creates a keyring whose current key has the given version.
func NewKeyring(key []byte, version int) (*Keyring, error) {
	if version < 1 {
		return nil, fmt.Errorf("seal: key version must be positive, got %d", version)
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: current key: %w", err)
	}
	return &Keyring{current: version, ciphers: map[int]*Cipher{version: c}}, nil
}

// ParseKeyring builds a keyring from configuration values. previous is a
// comma separated list of "<version>:<hex key>" pairs kept for reading rows
// sealed before a rotation.
func ParseKeyring(currentHex string, version int, previous string) (*Keyring, error) {
	key, err := ParseKey(currentHex)
	if err != nil {
		return nil, err
	}
	k, err := NewKeyring(key, version)
	if err != nil {
		return nil, err
	}
	for _, entry := range strings.Split(previous, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		v, hexKey, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("seal: previous key %q must be <version>:<hex>", entry)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("seal: previous key version %q: %w", v, err)
		}
		key, err := ParseKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("seal: previous key v%d: %w", n, err)
		}
		if err := k.AddKey(key, n); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// AddKey registers an older key for opening. The current key cannot be
// replaced.
func (k *Keyring) AddKey(key []byte, version int) error {
	c, err := NewCipher(key)
	if err != nil {
		return fmt.Errorf("seal: key v%d: %w", version, err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if version == k.current {
		return fmt.Errorf("seal: version %d is the current key", version)
	}
	k.ciphers[version] = c
	return nil
}

// Version returns the current key version.
func (k *Keyring) Version() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// Seal encrypts plaintext with the current key.
func (k *Keyring) Seal(plaintext, aad []byte) (string, error) {
	k.mu.RLock()
	c, version := k.ciphers[k.current], k.current
	k.mu.RUnlock()

	data, err := c.Seal(plaintext, aad)
	if err != nil {
		return "", err
	}
	return versionPrefix + strconv.Itoa(version) + versionSeparator + base64.StdEncoding.EncodeToString(data), nil
}

// Open decrypts a value produced by Seal with whichever key sealed it.
func (k *Keyring) Open(sealed string, aad []byte) ([]byte, error) {
	version, payload, err := parseSealed(sealed)
	if err != nil {
		return nil, err
	}
	k.mu.RLock()
	c, ok := k.ciphers[version]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("seal: no key for version %d", version)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("seal: base64 decode: %w", err)
	}
	return c.Open(data, aad)
}

// Stale reports whether sealed was produced by a key other than the current
// one and should be resealed.
func (k *Keyring) Stale(sealed string) bool {
	version, _, err := parseSealed(sealed)
	if err != nil {
		return true
	}
	return version != k.Version()
}

// Reseal opens sealed and seals the plaintext again with the current key.
func (k *Keyring) Reseal(sealed string, aad []byte) (string, error) {
	plaintext, err := k.Open(sealed, aad)
	if err != nil {
		return "", fmt.Errorf("seal: reseal: %w", err)
	}
	return k.Seal(plaintext, aad)
}

func parseSealed(s string) (int, string, error) {
	if !strings.HasPrefix(s, versionPrefix) {
		return 0, "", fmt.Errorf("seal: missing version prefix")
	}
	v, payload, ok := strings.Cut(s[len(versionPrefix):], versionSeparator)
	if !ok {
		return 0, "", fmt.Errorf("seal: missing version separator")
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return 0, "", fmt.Errorf("seal: invalid version %q", v)
	}
	return version, payload, nil
}
