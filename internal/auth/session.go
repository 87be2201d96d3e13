package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const sessionTokenBytes = 32 // >= 32 bytes per the session cookie contract

// NewSessionToken returns a base64url-encoded random bearer token.
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSessionToken derives HMAC_SHA256(secret, "sess:"||token); only this
// hash is ever persisted, never the raw token.
func HashSessionToken(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("sess:" + token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
