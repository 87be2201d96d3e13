package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// EnsureSecret returns configured when non-empty, else generates an
// ephemeral per-process secret. Callers (cmd/server) are responsible for
// logging a warning when a secret is generated, since this package carries
// no logger dependency.
func EnsureSecret(configured string) (string, bool, error) {
	if configured != "" {
		return configured, false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("auth: generate ephemeral secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), true, nil
}
