package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignCallback returns the hex HMAC-SHA256 of body under secret.
func SignCallback(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCallbackSignature checks an inbound callback signature. The header value may
// carry a "sha256=" prefix. Comparison is constant time.
func VerifyCallbackSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(strings.ToLower(signature), "sha256=")
	if secret == "" || signature == "" {
		return false
	}
	expected := SignCallback(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
