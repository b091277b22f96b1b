package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceLength is the length of a login nonce in hex characters.
const NonceLength = 32

// GenerateNonce creates a cryptographically secure login nonce:
// 16 random bytes, hex-encoded to 32 characters. Nonces are single-use
// and never persisted; uniqueness relies on entropy alone.
func GenerateNonce() (string, error) {
	b := make([]byte, NonceLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
