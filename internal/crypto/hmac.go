package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignData computes the hex-encoded HMAC-SHA256 signature of data
func SignData(data string, signingKey []byte) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignedData verifies a signature in constant time
func ValidateSignedData(data, signature string, signingKey []byte) bool {
	expected := SignData(data, signingKey)
	return hmac.Equal([]byte(expected), []byte(signature))
}
