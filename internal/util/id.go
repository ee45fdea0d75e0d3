package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns a prefixed random identifier, e.g. "ml-9f2c...".
func NewID(prefix string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("util: read random: %v", err))
	}
	return prefix + "-" + hex.EncodeToString(buf)
}

// NewToken returns an unprefixed random token suitable for magic links and
// refresh tokens.
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("util: read random: %v", err))
	}
	return hex.EncodeToString(buf)
}
