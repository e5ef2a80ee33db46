package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes a hex-encoded HMAC-SHA256 of data under the given secret.
// Merchant API calls carry this over the request body in the X-Signature
// header.
func Sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches data under secret. Comparison
// is constant-time.
func Verify(secret string, data []byte, signature string) bool {
	expected := Sign(secret, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}
