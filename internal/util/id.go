package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a short URL-safe hex identifier.
func NewID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
