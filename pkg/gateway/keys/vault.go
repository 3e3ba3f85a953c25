// Package keys handles secrets at the gateway edge: per-tenant provider
// keys encrypted at rest, and HMAC attach tokens for the live channel.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// ErrMalformedCiphertext is returned when a stored blob is too short to
// contain the salt, nonce, and sealed payload.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Vault encrypts and decrypts per-tenant provider keys with AES-256-GCM.
// Each blob is salt || nonce || sealed; the per-blob key is derived as
// SHA-256(master || salt). Decrypted keys are cached in a bounded map.
type Vault struct {
	master []byte

	mu       sync.Mutex
	cache    map[string]string // tenant id -> plaintext key
	maxCache int
}

// NewVault builds a vault from the master key material.
func NewVault(master []byte) (*Vault, error) {
	if len(master) < 16 {
		return nil, fmt.Errorf("master key too short: %d bytes", len(master))
	}
	return &Vault{
		master:   append([]byte(nil), master...),
		cache:    make(map[string]string),
		maxCache: 256,
	}, nil
}

// Encrypt seals a plaintext provider key.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := v.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a stored blob, caching the result under the tenant id.
func (v *Vault) Decrypt(tenantID string, blob []byte) (string, error) {
	v.mu.Lock()
	if cached, ok := v.cache[tenantID]; ok {
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	if len(blob) < saltSize+nonceSize+1 {
		return "", ErrMalformedCiphertext
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	gcm, err := v.aead(salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}

	v.mu.Lock()
	if len(v.cache) >= v.maxCache {
		// Bounded cache: evict wholesale rather than tracking recency.
		v.cache = make(map[string]string)
	}
	v.cache[tenantID] = string(plaintext)
	v.mu.Unlock()
	return string(plaintext), nil
}

// Forget drops a tenant's cached key, e.g. after rotation.
func (v *Vault) Forget(tenantID string) {
	v.mu.Lock()
	delete(v.cache, tenantID)
	v.mu.Unlock()
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	sum := sha256.Sum256(append(append([]byte(nil), v.master...), salt...))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("derive cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("derive gcm: %w", err)
	}
	return gcm, nil
}
