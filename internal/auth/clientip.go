package auth

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address, trusting X-Forwarded-For's first
// hop and then X-Real-IP, but only when the direct TCP peer is itself in
// trustedProxies. Otherwise the direct peer is authoritative.
func ClientIP(r *http.Request, trustHeaders bool, trustedProxies map[string]bool) string {
	peer := peerIP(r.RemoteAddr)
	if !trustHeaders || !trustedProxies[peer] {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// ParseTrustedProxies splits a comma-separated env value into a lookup set.
func ParseTrustedProxies(csv string) map[string]bool {
	set := make(map[string]bool)
	for _, ip := range strings.Split(csv, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			set[ip] = true
		}
	}
	return set
}
