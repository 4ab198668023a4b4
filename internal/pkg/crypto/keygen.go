package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// StorageNameRandomBytes is the number of random bytes in a generated storage name.
const StorageNameRandomBytes = 16

// ErrInvalidHexKey indicates an encryption key that is not 64 hex characters.
var ErrInvalidHexKey = errors.New("encryption key must be 64 hex characters (32 bytes)")

// GenerateStorageName returns the storage-facing name of a new blob:
// 32 random hex characters followed by ext, e.g. "9f86d081884c7d659a2feaa0c55ad015.pdf".
// The uploader's filename never contributes to it.
func GenerateStorageName(ext string) (string, error) {
	name, err := randomHex(StorageNameRandomBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate storage name: %w", err)
	}
	return name + ext, nil
}

// GenerateKey returns a new hex-encoded chunk encryption key.
func GenerateKey() (string, error) {
	return randomHex(KeySize)
}

// ParseKey decodes a hex-encoded chunk encryption key.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != KeySize*2 {
		return nil, ErrInvalidHexKey
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexKey, err)
	}
	return key, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
