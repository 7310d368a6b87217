// Package hash implements HMAC-SHA256 signing of report payloads.
//
// The agent signs every encoded metrics report with a key shared with the
// detection service; the service verifies the signature before evaluating
// the report. An empty key disables signing on both sides.
package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 signature of data under key and returns it
// as a hexadecimal string. Returns an empty string when key is empty.
func Sign(data []byte, key string) string {
	if key == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches the HMAC-SHA256 signature of
// data under key.
//
// Verification rules:
//   - empty key: always true (signing disabled)
//   - empty signature with a key configured: false
//   - otherwise: constant-time comparison via hmac.Equal
func Verify(data []byte, key string, signature string) bool {
	if key == "" {
		return true
	}
	if signature == "" {
		return false
	}
	expected := Sign(data, key)
	return hmac.Equal([]byte(expected), []byte(signature))
}
