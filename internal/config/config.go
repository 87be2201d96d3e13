// Package config loads the immutable settings value the rest of the server
// is constructed from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings is constructed once at startup and threaded through every
// package's constructor. It is never read from a package-level singleton.
type Settings struct {
	APIPort       string
	OutputDir     string
	ProjectsDir   string
	DatabaseURL   string
	RedisURL      string
	CorsOrigins   string
	DisableWorker bool
	MaxUploadMB   int

	AuthEnabled              bool
	AuthRequireForReads      bool
	AuthRequireForWrites     bool
	AuthSecretKey            string
	AuthSessionTTLDays       int
	AuthOTPTTLMinutes        int
	AuthOTPMinIntervalSecs   int
	AuthOTPMaxVerifyAttempts int
	AuthEmailAllowlist       string

	AuthRLRegisterPerEmailPerHour   int
	AuthRLLoginPerEmailPerHour      int
	AuthRLOTPRequestPerEmailPerHour int

	OverloadMaxInflightRequests   int
	OverloadAcquireTimeoutSeconds float64
	OverloadRetryAfterSeconds     int

	SessionCookieName     string
	SessionCookieSecure   bool
	SessionCookieSameSite string
	SessionCookieDomain   string

	TrustProxyHeaders bool
	TrustedProxyIPs   string

	VideoConcatMode string

	InviteBatchSize  int
	InviteCodePrefix string

	OpenAIKey  string
	GeminiKey  string

	AuthDevPrintCode bool
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
	SMTPFromName     string
	SMTPUseSSL       bool

	Environment string // "development" | "production"
}

// Load reads a .env file (if present) and then the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		APIPort:       getEnv("API_PORT", "8080"),
		OutputDir:     getEnv("OUTPUT_DIR", "./output"),
		ProjectsDir:   getEnv("PROJECTS_DIR", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		CorsOrigins:   getEnv("CORS_ORIGINS", ""),
		DisableWorker: getEnvBool("DISABLE_WORKER", false),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 512),

		AuthEnabled:              getEnvBool("AUTH_ENABLED", true),
		AuthRequireForReads:      getEnvBool("AUTH_REQUIRE_FOR_READS", true),
		AuthRequireForWrites:     getEnvBool("AUTH_REQUIRE_FOR_WRITES", true),
		AuthSecretKey:            getEnv("AUTH_SECRET_KEY", ""),
		AuthSessionTTLDays:       getEnvInt("AUTH_SESSION_TTL_DAYS", 30),
		AuthOTPTTLMinutes:        getEnvInt("AUTH_OTP_TTL_MINUTES", 10),
		AuthOTPMinIntervalSecs:   getEnvInt("AUTH_OTP_MIN_INTERVAL_SECONDS", 60),
		AuthOTPMaxVerifyAttempts: getEnvInt("AUTH_OTP_MAX_VERIFY_ATTEMPTS", 5),
		AuthEmailAllowlist:       getEnv("AUTH_EMAIL_ALLOWLIST", ""),

		AuthRLRegisterPerEmailPerHour:   getEnvInt("AUTH_RL_REGISTER_PER_EMAIL_PER_HOUR", 5),
		AuthRLLoginPerEmailPerHour:      getEnvInt("AUTH_RL_LOGIN_PER_EMAIL_PER_HOUR", 20),
		AuthRLOTPRequestPerEmailPerHour: getEnvInt("AUTH_RL_OTP_REQUEST_PER_EMAIL_PER_HOUR", 10),

		OverloadMaxInflightRequests:   getEnvInt("OVERLOAD_MAX_INFLIGHT_REQUESTS", 64),
		OverloadAcquireTimeoutSeconds: getEnvFloat("OVERLOAD_ACQUIRE_TIMEOUT_SECONDS", 2.0),
		OverloadRetryAfterSeconds:     getEnvInt("OVERLOAD_RETRY_AFTER_SECONDS", 5),

		SessionCookieName:     getEnv("SESSION_COOKIE_NAME", "session"),
		SessionCookieSecure:   getEnvBool("SESSION_COOKIE_SECURE", true),
		SessionCookieSameSite: getEnv("SESSION_COOKIE_SAMESITE", "lax"),
		SessionCookieDomain:   getEnv("SESSION_COOKIE_DOMAIN", ""),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		TrustedProxyIPs:   getEnv("TRUSTED_PROXY_IPS", ""),

		VideoConcatMode: getEnv("VIDEO_CONCAT_MODE", "auto"),

		InviteBatchSize:  getEnvInt("INVITE_BATCH_SIZE", 5),
		InviteCodePrefix: getEnv("INVITE_CODE_PREFIX", "SK-"),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiKey: getEnv("GEMINI_API_KEY", ""),

		AuthDevPrintCode: getEnvBool("AUTH_DEV_PRINT_CODE", false),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:         getEnv("SMTP_FROM", ""),
		SMTPFromName:     getEnv("SMTP_FROM_NAME", "SceneKit"),
		SMTPUseSSL:       getEnvBool("SMTP_USE_SSL", false),

		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if s.ProjectsDir == "" {
		s.ProjectsDir = strings.TrimRight(s.OutputDir, "/") + "/projects"
	}

	if s.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	if s.AuthEnabled && s.Environment == "production" && s.AuthSecretKey == "" {
		return nil, fmt.Errorf("config: AUTH_SECRET_KEY is required in production when AUTH_ENABLED=true")
	}

	switch s.VideoConcatMode {
	case "auto", "copy", "ts", "reencode":
	default:
		return nil, fmt.Errorf("config: invalid VIDEO_CONCAT_MODE %q", s.VideoConcatMode)
	}

	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
