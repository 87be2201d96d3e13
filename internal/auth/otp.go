package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// GenerateOTPCode returns a zero-padded 6-digit numeric code.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("auth: generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashOTP derives HMAC_SHA256(secret, "otp:"||email||":"||code), matching
// the reference server's code hashing. Kept separate from HashSessionToken
// even though both use the same primitive, so the domain separation prefix
// can never be confused between the two.
func HashOTP(secret, email, code string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("otp:" + email + ":" + code))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEqual compares two OTP/session hashes without leaking timing.
func ConstantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
