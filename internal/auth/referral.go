package auth

import (
	"regexp"
	"strings"
)

// referralAllowlist is the fixed set of acquisition channels the register
// form accepts. See DESIGN.md for why this is fixed rather than derived.
var referralAllowlist = map[string]bool{
	"x": true, "twitter": true, "instagram": true, "tiktok": true,
	"youtube": true, "friend": true, "search": true, "newsletter": true,
	"other": true,
}

// ValidReferral reports whether referral is a recognized acquisition
// channel. Empty is invalid — the field is required at registration.
func ValidReferral(referral string) bool {
	return referralAllowlist[strings.ToLower(strings.TrimSpace(referral))]
}

var countryRE = regexp.MustCompile(`^[A-Z]{2}$`)

// ValidCountry reports whether country is a 2-letter uppercase ISO-3166
// alpha-2 shape. This is a shape check only, not a membership check against
// the real list of country codes.
func ValidCountry(country string) bool {
	return countryRE.MatchString(strings.TrimSpace(country))
}
