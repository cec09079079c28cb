package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/hyperjump/embedapi/internal/models"
)

// Key identifies a (text, backend) pair.
type Key [sha256.Size]byte

// DeriveKey returns the SHA-256 of text and backend. A NUL byte separates the
// two so that no text can be confused with a different text/backend split.
// The result is stable across processes.
func DeriveKey(text string, backend models.Backend) Key {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(backend))
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// String returns the lowercase hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey decodes a key produced by Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse cache key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("parse cache key: got %d bytes, want %d", len(b), len(k))
	}
	copy(k[:], b)
	return k, nil
}
