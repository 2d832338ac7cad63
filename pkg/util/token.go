package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const defaultKeyBytes = 16

// GenerateLicenseKey returns a random upper-case hex key of n bytes
// (16 when n <= 0).
func GenerateLicenseKey(n int) (string, error) {
	if n <= 0 {
		n = defaultKeyBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
