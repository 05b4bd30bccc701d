package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ServicePrefix marks keys issued to internal services that create notifications.
const ServicePrefix = "svc"

// GenerateKey creates a new API key with the given prefix.
// Format: {prefix}_{48_hex_chars}
func GenerateKey(prefix, secret string) (key string, hash string, err error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	fullKey := fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
	return fullKey, HashKey(fullKey, secret), nil
}

// HashKey hashes the full API key for storage using HMAC-SHA256.
func HashKey(key, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether key hashes to one of the allowed hashes.
func Verify(key, secret string, allowed []string) bool {
	if key == "" || !strings.HasPrefix(key, ServicePrefix+"_") {
		return false
	}
	got := []byte(HashKey(key, secret))
	for _, h := range allowed {
		if hmac.Equal(got, []byte(h)) {
			return true
		}
	}
	return false
}
