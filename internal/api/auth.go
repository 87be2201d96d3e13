package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clipforge/scenekit/internal/auth"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/invites"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

func (h *Handler) bumpRateLimit(r *http.Request, namespace, subject string, limitPerHour int) error {
	if limitPerHour <= 0 {
		return nil
	}
	key, expiresAt := auth.MakeWindowKey(namespace, subject, time.Now().UTC(), 3600)
	count, err := h.db.BumpRateLimitCounter(r.Context(), key, time.Now().UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if count > limitPerHour {
		return newAppError(http.StatusTooManyRequests, "RL_LIMITED")
	}
	return nil
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, principalID string) error {
	token, err := auth.NewSessionToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	sess := &models.Session{
		ID:          uuid.New(),
		PrincipalID: principalID,
		TokenHash:   auth.HashSessionToken(h.secret, token),
		ExpiresAt:   time.Now().UTC().AddDate(0, 0, h.cfg.AuthSessionTTLDays),
		LastSeenAt:  time.Now().UTC(),
	}
	if err := h.db.CreateSession(r.Context(), sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	auth.SetSessionCookie(w, h.cookie, token)
	return nil
}

type requestCodeIn struct {
	Email string `json:"email"`
}

// RequestCode handles POST /api/auth/otp/request.
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var in requestCodeIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	email := auth.NormalizeEmail(in.Email)
	if !auth.ValidEmailShape(email) {
		respondError(w, newAppError(http.StatusBadRequest, "EMAIL_INVALID"))
		return
	}
	if !auth.EmailAllowed(email, h.cfg.AuthEmailAllowlist) {
		respondError(w, newAppError(http.StatusForbidden, "EMAIL_NOT_ALLOWED"))
		return
	}
	if err := h.bumpRateLimit(r, "otp_request", email, h.cfg.AuthRLOTPRequestPerEmailPerHour); err != nil {
		respondError(w, err)
		return
	}

	if last, err := h.db.MostRecentOTP(r.Context(), email); err == nil {
		if time.Since(last.CreatedAt) < time.Duration(h.cfg.AuthOTPMinIntervalSecs)*time.Second {
			respondError(w, newAppError(http.StatusTooManyRequests, "OTP_TOO_SOON"))
			return
		}
	} else if err != db.ErrNotFound {
		respondError(w, fmt.Errorf("lookup otp: %w", err))
		return
	}

	code, err := auth.GenerateOTPCode()
	if err != nil {
		respondError(w, fmt.Errorf("generate otp: %w", err))
		return
	}

	cred := &models.Credential{
		ID:          uuid.New(),
		PrincipalID: principalIDForEmail(email),
		Kind:        models.CredentialKindEmailOTP,
		Email:       &email,
		CodeHash:    strPtr(auth.HashOTP(h.secret, email, code)),
		ExpiresAt:   timePtr(time.Now().UTC().Add(time.Duration(h.cfg.AuthOTPTTLMinutes) * time.Minute)),
	}
	if err := h.db.CreateCredential(r.Context(), cred); err != nil {
		respondError(w, fmt.Errorf("create otp credential: %w", err))
		return
	}

	if err := h.mail.SendOTP(email, code, h.cfg.AuthOTPTTLMinutes); err != nil {
		_ = h.db.DeleteCredential(r.Context(), cred.ID)
		respondError(w, fmt.Errorf("send otp email: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, AuthOkOut{OK: true})
}

type verifyCodeIn struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCode handles POST /api/auth/otp/verify.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var in verifyCodeIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	email := auth.NormalizeEmail(in.Email)

	candidates, err := h.db.UnexpiredUnconsumedOTPs(r.Context(), email)
	if err != nil {
		respondError(w, fmt.Errorf("list otps: %w", err))
		return
	}
	codeHash := auth.HashOTP(h.secret, email, in.Code)

	for _, c := range candidates {
		if c.Attempts >= h.cfg.AuthOTPMaxVerifyAttempts {
			continue
		}
		if c.CodeHash != nil && auth.ConstantTimeEqual(*c.CodeHash, codeHash) {
			if err := h.db.ConsumeCredential(r.Context(), c.ID); err != nil {
				respondError(w, fmt.Errorf("consume otp: %w", err))
				return
			}
			if err := h.finishLogin(w, r, principalIDForEmail(email), "", email); err != nil {
				respondError(w, err)
			}
			return
		}
		_ = h.db.BumpOTPAttempts(r.Context(), c.ID, c.Attempts+1, c.Attempts+1 >= h.cfg.AuthOTPMaxVerifyAttempts)
	}

	respondError(w, newAppError(http.StatusBadRequest, "OTP_INVALID"))
}

type registerIn struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	InviteCode string `json:"invite_code"`
	Referral   string `json:"referral"`
	Country    string `json:"country"`
}

// Register handles POST /api/auth/register: password+invite-gated signup.
// On success it mints a fresh batch of unredeemed invite codes for the new
// principal, matching the reference flow's "invites" field in AuthMeOut.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	if in.Username == "" || len(in.Password) < 8 {
		respondError(w, newAppError(http.StatusBadRequest, "username and a password of at least 8 characters are required"))
		return
	}
	email := auth.NormalizeEmail(in.Email)
	if email != "" && !auth.ValidEmailShape(email) {
		respondError(w, newAppError(http.StatusBadRequest, "EMAIL_INVALID"))
		return
	}
	if !auth.ValidReferral(in.Referral) {
		respondError(w, newAppError(http.StatusBadRequest, "REFERRAL_INVALID"))
		return
	}
	if !auth.ValidCountry(in.Country) {
		respondError(w, newAppError(http.StatusBadRequest, "COUNTRY_INVALID"))
		return
	}
	if err := h.bumpRateLimit(r, "register", email, h.cfg.AuthRLRegisterPerEmailPerHour); err != nil {
		respondError(w, err)
		return
	}

	code := invites.Normalize(in.InviteCode)
	invite, err := h.db.GetInviteCode(r.Context(), code)
	if err == db.ErrNotFound {
		respondError(w, newAppError(http.StatusBadRequest, "INVITE_INVALID"))
		return
	}
	if err != nil {
		respondError(w, fmt.Errorf("lookup invite: %w", err))
		return
	}
	if invite.RedeemedBy != nil || invite.DisabledAt != nil {
		respondError(w, newAppError(http.StatusBadRequest, "INVITE_INVALID"))
		return
	}

	if _, err := h.db.GetPasswordCredentialByUsername(r.Context(), in.Username); err == nil {
		respondError(w, newAppError(http.StatusConflict, "USERNAME_TAKEN"))
		return
	} else if err != db.ErrNotFound {
		respondError(w, fmt.Errorf("check username: %w", err))
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		respondError(w, fmt.Errorf("hash password: %w", err))
		return
	}

	principalID := uuid.New().String()
	cred := &models.Credential{
		ID:           uuid.New(),
		PrincipalID:  principalID,
		Kind:         models.CredentialKindPassword,
		Username:     strPtr(in.Username),
		PasswordHash: strPtr(hash),
	}
	if email != "" {
		cred.Email = &email
	}
	if err := h.db.CreateCredential(r.Context(), cred); err != nil {
		respondError(w, fmt.Errorf("create credential: %w", err))
		return
	}

	redeemed, err := h.db.RedeemInviteCode(r.Context(), invite.Code, principalID)
	if err != nil {
		respondError(w, fmt.Errorf("redeem invite: %w", err))
		return
	}
	if !redeemed {
		respondError(w, newAppError(http.StatusBadRequest, "INVITE_INVALID"))
		return
	}

	mintedCodes, err := h.mintInvites(r, principalID, invite.Code)
	if err != nil {
		respondError(w, fmt.Errorf("mint invites: %w", err))
		return
	}

	if err := h.startSession(w, r, principalID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AuthMeOut{
		Authenticated: true,
		UserID:        principalID,
		Username:      in.Username,
		Email:         email,
		Invites:       mintedCodes,
	})
}

// mintInvites mints h.cfg.InviteBatchSize fresh unredeemed invite codes
// owned by principalID, each chained to parentCode (the invite that brought
// the owner in), so the referral tree stays traceable.
func (h *Handler) mintInvites(r *http.Request, principalID, parentCode string) ([]string, error) {
	codes := make([]string, 0, h.cfg.InviteBatchSize)
	for i := 0; i < h.cfg.InviteBatchSize; i++ {
		code, err := invites.NewCode(h.cfg.InviteCodePrefix)
		if err != nil {
			return nil, err
		}
		if err := h.db.CreateInviteCode(r.Context(), code, &principalID, &parentCode); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

type loginIn struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	if err := h.bumpRateLimit(r, "login", in.Username, h.cfg.AuthRLLoginPerEmailPerHour); err != nil {
		respondError(w, err)
		return
	}

	cred, err := h.db.GetPasswordCredentialByUsername(r.Context(), in.Username)
	if err == db.ErrNotFound {
		respondError(w, newAppError(http.StatusUnauthorized, "CREDENTIALS_INVALID"))
		return
	}
	if err != nil {
		respondError(w, fmt.Errorf("lookup credential: %w", err))
		return
	}
	if cred.PasswordHash == nil || !auth.VerifyPassword(in.Password, *cred.PasswordHash) {
		respondError(w, newAppError(http.StatusUnauthorized, "CREDENTIALS_INVALID"))
		return
	}

	if err := h.finishLogin(w, r, cred.PrincipalID, in.Username, derefStr(cred.Email)); err != nil {
		respondError(w, err)
		return
	}
}

func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, principalID, username, email string) error {
	if err := h.startSession(w, r, principalID); err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, AuthMeOut{Authenticated: true, UserID: principalID, Username: username, Email: email})
	return nil
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, fmt.Errorf("resolve session: %w", err))
		return
	}
	if u == nil || u.anonymous() {
		respondJSON(w, http.StatusOK, AuthMeOut{Authenticated: false})
		return
	}

	out := AuthMeOut{Authenticated: true, UserID: u.PrincipalID}
	invitesOwned, err := h.db.ListUnredeemedInvites(r.Context(), u.PrincipalID)
	if err == nil {
		codes := make([]string, 0, len(invitesOwned))
		for _, i := range invitesOwned {
			codes = append(codes, i.Code)
		}
		out.Invites = codes
	}
	respondJSON(w, http.StatusOK, out)
}

// ListInvites handles GET /api/auth/invites.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if u.anonymous() {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	invitesOwned, err := h.db.ListUnredeemedInvites(r.Context(), u.PrincipalID)
	if err != nil {
		respondError(w, fmt.Errorf("list invites: %w", err))
		return
	}
	codes := make([]string, 0, len(invitesOwned))
	for _, i := range invitesOwned {
		codes = append(codes, i.Code)
	}
	respondJSON(w, http.StatusOK, codes)
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, fmt.Errorf("resolve session: %w", err))
		return
	}
	if u != nil {
		_ = h.db.RevokeSession(r.Context(), u.SessionID)
	}
	auth.ClearSessionCookie(w, h.cookie)
	respondJSON(w, http.StatusOK, AuthOkOut{OK: true})
}

// otpPrincipalNamespace salts the deterministic principal id an OTP login
// resolves to. The reference OTP route keys sessions by email directly
// (no principal concept); this module's schema ties ownership to a
// principal_id, so the same email must always land on the same synthetic
// id across logins rather than minting a fresh, disconnected one each time.
var otpPrincipalNamespace = uuid.MustParse("6ba7b813-9dad-11d1-80b4-00c04fd430c8")

func principalIDForEmail(email string) string {
	return uuid.NewSHA1(otpPrincipalNamespace, []byte(email)).String()
}

func strPtr(s string) *string { return &s }
func timePtr(t time.Time) *time.Time { return &t }
func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
