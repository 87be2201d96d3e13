// Package api exposes the synchronous HTTP surface over the same
// persistence and job-handler logic the asynchronous job engine uses.
package api

import (
	"net/http"

	"github.com/clipforge/scenekit/internal/auth"
	"github.com/clipforge/scenekit/internal/config"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/jobengine"
	"github.com/clipforge/scenekit/internal/mailer"
	"github.com/clipforge/scenekit/internal/media"
	"github.com/clipforge/scenekit/internal/storage"
)

// Handler holds every collaborator the HTTP routes need. It reuses the
// job engine's RunSync entry point for the synchronous generate/analyze/
// assemble routes instead of duplicating prompt-building and persistence
// logic, and holds the engine's own renderSem/llmSem indirectly through it.
type Handler struct {
	db     *db.DB
	layout *storage.Layout
	media  *media.Toolkit
	engine *jobengine.Engine
	wake   *jobengine.WakeQueue
	cfg    *config.Settings
	mail   mailer.Sender

	cookie         auth.CookieSettings
	trustedProxies map[string]bool
	secret         string
}

func NewHandler(database *db.DB, layout *storage.Layout, toolkit *media.Toolkit, engine *jobengine.Engine, wake *jobengine.WakeQueue, cfg *config.Settings, mail mailer.Sender, secret string) *Handler {
	return &Handler{
		db:     database,
		layout: layout,
		media:  toolkit,
		engine: engine,
		wake:   wake,
		cfg:    cfg,
		mail:   mail,
		secret: secret,
		cookie: auth.CookieSettings{
			Name:     cfg.SessionCookieName,
			Secure:   cfg.SessionCookieSecure,
			SameSite: cfg.SessionCookieSameSite,
			Domain:   cfg.SessionCookieDomain,
			TTLDays:  cfg.AuthSessionTTLDays,
		},
		trustedProxies: auth.ParseTrustedProxies(cfg.TrustedProxyIPs),
	}
}

// Health reports liveness without touching the database, so a load balancer
// health check never blocks on a slow query.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
