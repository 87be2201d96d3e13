package auth

import (
	"net/http"
	"testing"
	"time"
)

func TestHashPasswordVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Fatal("expected verify(p, hash(p)) == true")
	}
	if VerifyPassword("wrong password", hash) {
		t.Fatal("expected verify(p', hash(p)) == false")
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	a, _ := HashPassword("same-password")
	b, _ := HashPassword("same-password")
	if a == b {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestGenerateOTPCodeIsSixDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateOTPCode()
		if err != nil {
			t.Fatalf("GenerateOTPCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
	}
}

func TestHashOTPDeterministic(t *testing.T) {
	a := HashOTP("secret", "user@example.com", "123456")
	b := HashOTP("secret", "user@example.com", "123456")
	if a != b {
		t.Fatal("expected HashOTP to be deterministic")
	}
	c := HashOTP("secret", "user@example.com", "654321")
	if a == c {
		t.Fatal("expected different codes to hash differently")
	}
}

func TestNewSessionTokenUnique(t *testing.T) {
	a, _ := NewSessionToken()
	b, _ := NewSessionToken()
	if a == b {
		t.Fatal("expected distinct session tokens")
	}
}

func TestMakeWindowKeyBucketsByWindow(t *testing.T) {
	now := time.Unix(3661, 0).UTC() // bucket 61 for window=60 -> 3661/60=61
	key, expires := MakeWindowKey("otp", "user@example.com", now, 60)
	if key != "otp:user@example.com:61" {
		t.Fatalf("got key %q", key)
	}
	if expires.Unix() != (61+1)*60 { // window end: bucket start + window
		t.Fatalf("got expires %v", expires)
	}
}

func TestClientIPUntrustedPeerIgnoresHeaders(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.5:1234"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	got := ClientIP(r, true, ParseTrustedProxies("10.1.1.1"))
	if got != "203.0.113.5" {
		t.Fatalf("got %q", got)
	}
}

func TestClientIPTrustedPeerUsesForwardedFor(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.1.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
	got := ClientIP(r, true, ParseTrustedProxies("10.1.1.1"))
	if got != "203.0.113.9" {
		t.Fatalf("got %q", got)
	}
}

func TestEmailValidation(t *testing.T) {
	if !ValidEmailShape("user@example.com") {
		t.Fatal("expected valid email to pass")
	}
	if ValidEmailShape("not-an-email") {
		t.Fatal("expected invalid email to fail")
	}
}

func TestEmailAllowlist(t *testing.T) {
	if !EmailAllowed("user@example.com", "") {
		t.Fatal("empty allowlist should allow everyone")
	}
	if !EmailAllowed("user@example.com", "admin@example.com, user@example.com") {
		t.Fatal("expected email in allowlist to pass")
	}
	if EmailAllowed("outsider@example.com", "admin@example.com") {
		t.Fatal("expected email outside allowlist to fail")
	}
}
