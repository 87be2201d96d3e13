// Package invites generates and normalizes invite-gate codes.
package invites

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// alphabet excludes visually ambiguous characters (I, O, 0, 1).
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Normalize trims and uppercases a user-supplied code for lookup.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NewCode mints a fresh invite code of the form "<PREFIX>XXXX-XXXX-XXXX".
func NewCode(prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "SK-"
	}
	if !strings.HasSuffix(prefix, "-") {
		prefix += "-"
	}

	body := make([]byte, 12)
	for i := range body {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		body[i] = alphabet[n.Int64()]
	}
	return prefix + string(body[0:4]) + "-" + string(body[4:8]) + "-" + string(body[8:12]), nil
}
