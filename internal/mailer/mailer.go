// Package mailer delivers one-time-passcode emails over SMTP. No
// third-party mail client appears anywhere in the example corpus, so this
// stays on net/smtp rather than inventing a dependency the pack never shows.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sender delivers an OTP code to an email address.
type Sender interface {
	SendOTP(toEmail, code string, ttlMinutes int) error
}

// SMTPSender sends mail through a configured SMTP relay. When DevPrintCode
// is set it logs the code instead, the same escape hatch the reference
// server offers for local development.
type SMTPSender struct {
	Host         string
	Port         int
	User         string
	Password     string
	From         string
	FromName     string
	UseSSL       bool
	DevPrintCode bool
}

func (s *SMTPSender) SendOTP(toEmail, code string, ttlMinutes int) error {
	if s.DevPrintCode {
		log.Info().Str("email", toEmail).Str("code", code).Int("ttl_minutes", ttlMinutes).
			Msg("mailer: dev mode, not sending OTP email")
		return nil
	}
	if s.Host == "" || s.User == "" || s.Password == "" || s.From == "" {
		return fmt.Errorf("mailer: SMTP is not configured")
	}

	subject := fmt.Sprintf("SceneKit verification code: %s", code)
	body := fmt.Sprintf(
		"Your SceneKit verification code is: %s\n\nThis code expires in %d minutes.\n\nIf you did not request this code, you can ignore this email.",
		code, ttlMinutes,
	)
	from := fmt.Sprintf("%s <%s>", s.FromName, s.From)
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + toEmail,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.User, s.Password, s.Host)
	return smtp.SendMail(addr, auth, s.From, []string{toEmail}, []byte(msg))
}
