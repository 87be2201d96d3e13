package auth

import (
	"regexp"
	"strings"
)

var emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail trims and lowercases a raw email string.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidEmailShape reports whether email looks like an email and fits within
// the conventional 254-byte limit.
func ValidEmailShape(email string) bool {
	return email != "" && len(email) <= 254 && emailRE.MatchString(email)
}

// EmailAllowed reports whether email passes the allowlist, which imposes no
// restriction when empty.
func EmailAllowed(email, allowlistCSV string) bool {
	allowlistCSV = strings.TrimSpace(allowlistCSV)
	if allowlistCSV == "" {
		return true
	}
	for _, e := range strings.Split(allowlistCSV, ",") {
		if NormalizeEmail(e) == email {
			return true
		}
	}
	return false
}
