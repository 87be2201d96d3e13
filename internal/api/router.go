package api

import (
	"strings"
	"time"

	"github.com/clipforge/scenekit/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires every route in the HTTP surface onto a chi router,
// following the teacher's layering: global middleware first, then the
// overload shedder, then route groups per resource.
func NewRouter(h *Handler, cfg *config.Settings) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /healthz)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(overloadShedder(cfg))

	var origins []string
	if cfg.CorsOrigins != "" {
		for _, o := range strings.Split(cfg.CorsOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/otp/request", h.RequestCode)
		r.Post("/otp/verify", h.VerifyCode)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.Get("/invites", h.ListInvites)
	})

	r.Route("/api/projects", func(r chi.Router) {
		r.Post("/", h.CreateProject)
		r.Get("/", h.ListProjects)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Get("/final", h.GetProjectFinal)
			r.Post("/assemble", h.AssembleProject)

			r.Get("/full_script", h.GetProject)
			r.Post("/full_script/generate", h.GenerateFullScript)
			r.Put("/full_script", h.UpdateFullScript)

			r.Route("/segments/{index}", func(r chi.Router) {
				r.Get("/", h.GetSegment)
				r.Put("/", h.UpdateSegment)
				r.Post("/generate", h.GenerateSegment)
				r.Post("/video", h.UploadVideo)
				r.Get("/video", h.StreamVideo)
				r.Post("/extract_frame", h.ExtractFrame)
				r.Post("/analyze", h.AnalyzeSegment)
				r.Get("/frame", h.StreamFrame)
				r.Get("/frame/download", h.DownloadFrame)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.CreateJob)
				r.Get("/", h.ListJobs)
				r.Get("/{job_id}", h.GetJob)
			})
		})
	})

	return r
}
