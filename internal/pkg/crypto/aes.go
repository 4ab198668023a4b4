// Package crypto seals stored chunks, names blobs and computes blob checksums.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

var (
	// ErrInvalidKeySize indicates a key that is not KeySize bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes (256 bits)")

	// ErrInvalidCiphertext indicates a sealed payload shorter than nonce and tag.
	ErrInvalidCiphertext = errors.New("sealed payload is too short")

	// ErrDecryptionFailed indicates a wrong key, a tampered payload or a
	// payload sealed for a different chunk position.
	ErrDecryptionFailed = errors.New("sealed payload failed authentication")
)

// Encryptor seals chunk payloads with AES-256-GCM. A random nonce is
// prepended to every sealed payload. It is safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor for a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Overhead is the number of bytes Seal adds to a payload.
func (e *Encryptor) Overhead() int {
	return NonceSize + e.aead.Overhead()
}

// Seal returns nonce || ciphertext || tag. The position binds the payload
// to one chunk so that chunks cannot be swapped between blobs or sequences.
func (e *Encryptor) Seal(plaintext, position []byte) ([]byte, error) {
	out := make([]byte, NonceSize, len(plaintext)+e.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(out, out, plaintext, position), nil
}

// Open reverses Seal for the same position.
func (e *Encryptor) Open(sealed, position []byte) ([]byte, error) {
	if len(sealed) < e.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := e.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], position)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
