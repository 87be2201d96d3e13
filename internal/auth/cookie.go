package auth

import (
	"net/http"
	"time"
)

// CookieSettings controls how the session cookie is written and cleared.
type CookieSettings struct {
	Name     string
	Secure   bool
	SameSite string
	Domain   string
	TTLDays  int
}

func (c CookieSettings) sameSite() http.SameSite {
	switch c.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SetSessionCookie writes the HttpOnly session cookie for token.
func SetSessionCookie(w http.ResponseWriter, s CookieSettings, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    token,
		MaxAge:   s.TTLDays * 24 * 3600,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: s.sameSite(),
		Domain:   s.Domain,
		Path:     "/",
	})
}

// ClearSessionCookie deletes the session cookie on logout.
func ClearSessionCookie(w http.ResponseWriter, s CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Name,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: s.sameSite(),
		Domain:   s.Domain,
		Path:     "/",
		Expires:  time.Unix(0, 0),
	})
}
