package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/clipforge/scenekit/internal/auth"
	"github.com/clipforge/scenekit/internal/config"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/google/uuid"
)

// authUser mirrors the reference system's AuthUser: an empty PrincipalID
// means "anonymous", returned whenever auth is disabled or not required for
// the operation in question — never a 401 on its own.
type authUser struct {
	PrincipalID string
	SessionID   uuid.UUID
}

func (u authUser) anonymous() bool { return u.PrincipalID == "" }

// currentUser resolves the session cookie into an authUser, or nil if no
// live session is present. It never returns an error for "no session" —
// only for an underlying DB failure.
func (h *Handler) currentUser(r *http.Request) (*authUser, error) {
	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	tokenHash := auth.HashSessionToken(h.secret, cookie.Value)
	sess, err := h.db.GetSessionByTokenHash(r.Context(), tokenHash)
	if err == db.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Best-effort last-seen tracking; a failure here must never fail auth.
	_ = h.db.TouchSession(r.Context(), sess.ID)

	return &authUser{PrincipalID: sess.PrincipalID, SessionID: sess.ID}, nil
}

// requireUser implements the write-path gate: anonymous is accepted unless
// auth is both enabled and required for writes.
func (h *Handler) requireUser(r *http.Request) (authUser, error) {
	return h.requireUserFor(r, h.cfg.AuthRequireForWrites)
}

// requireReadUser is requireUser's read-path counterpart.
func (h *Handler) requireReadUser(r *http.Request) (authUser, error) {
	return h.requireUserFor(r, h.cfg.AuthRequireForReads)
}

func (h *Handler) requireUserFor(r *http.Request, required bool) (authUser, error) {
	u, err := h.currentUser(r)
	if err != nil {
		return authUser{}, err
	}
	if !h.cfg.AuthEnabled || !required {
		if u != nil {
			return *u, nil
		}
		return authUser{}, nil
	}
	if u == nil {
		return authUser{}, errAuthRequired
	}
	return *u, nil
}

// requireProjectOwnership enforces the "miss returns 404, never 403" rule:
// an anonymous principal is never checked (ownership gating is meaningless
// without an identity), and a real principal who doesn't own the project
// gets the same 404 a nonexistent project would, so existence never leaks.
func (h *Handler) requireProjectOwnership(ctx context.Context, projectID uuid.UUID, u authUser) error {
	if u.anonymous() {
		return nil
	}
	ok, err := h.db.IsOwner(ctx, projectID, u.PrincipalID)
	if err != nil {
		return err
	}
	if !ok {
		return errProjectNotFound
	}
	return nil
}

// overloadShedder bounds in-flight request concurrency with a bare channel
// semaphore: acquire with a timeout, shed with 503+Retry-After when the
// server is saturated rather than queuing indefinitely. Generalized from
// the absence of such a guard in the teacher's router — go-chi's own
// middleware.Throttle is the closest ecosystem shape this follows.
func overloadShedder(cfg *config.Settings) func(http.Handler) http.Handler {
	sem := make(chan struct{}, cfg.OverloadMaxInflightRequests)
	timeout := time.Duration(cfg.OverloadAcquireTimeoutSeconds * float64(time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			case <-time.After(timeout):
				w.Header().Set("Retry-After", strconv.Itoa(cfg.OverloadRetryAfterSeconds))
				respondError(w, errOverloaded)
			}
		})
	}
}
