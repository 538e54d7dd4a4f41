package cachestore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts cache blobs at rest with XChaCha20-Poly1305.
// Sealed blobs are laid out as nonce || ciphertext.
type Sealer struct {
	key []byte
}

// NewSealer builds a sealer from a hex encoded 32 byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, lserrors.Wrapf(lserrors.ErrInvalidConfig, "[NewSealer] key is not hex: %v", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, lserrors.Wrapf(lserrors.ErrInvalidConfig, "[NewSealer] key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// Seal binds the ciphertext to the session id so a blob cannot be replayed under another key.
func (s *Sealer) Seal(sessionID string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[Sealer Seal] %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[Sealer Seal] nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(sessionID)), nil
}

// Open returns ErrCacheCorrupt for anything that does not authenticate.
func (s *Sealer) Open(sessionID string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[Sealer Open] %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, lserrors.Wrapf(lserrors.ErrCacheCorrupt, "[Sealer Open] blob too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(sessionID))
	if err != nil {
		return nil, lserrors.Wrapf(lserrors.ErrCacheCorrupt, "[Sealer Open] %v", err)
	}
	return plaintext, nil
}
