// Package auth implements the access-control substrate: password and OTP
// credential hashing, session tokens, proxy-aware client IP resolution, and
// windowed rate-limit counters.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordAlgorithm  = "pbkdf2_sha256"
	passwordIterations = 200_000
	passwordSaltBytes  = 16
	passwordKeyLength  = 32
)

// HashPassword derives a PBKDF2-HMAC-SHA256 key and returns the stored
// representation `pbkdf2_sha256$<iters>$<salt_b64>$<dk_b64>`.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(password), salt, passwordIterations, passwordKeyLength, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", passwordAlgorithm, passwordIterations, b64encode(salt), b64encode(dk)), nil
}

// VerifyPassword reports whether password matches stored, using a
// constant-time comparison of the derived key.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != passwordAlgorithm {
		return false
	}
	var iters int
	if _, err := fmt.Sscanf(parts[1], "%d", &iters); err != nil || iters <= 0 {
		return false
	}
	salt, err := b64decode(parts[2])
	if err != nil {
		return false
	}
	want, err := b64decode(parts[3])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iters, len(want), sha256.New)
	return hmac.Equal(got, want)
}

func b64encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func b64decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
