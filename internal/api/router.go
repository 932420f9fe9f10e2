package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/kiranshivaraju/recipebox/internal/api/handler"
	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPerIPLimit = 30

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// CORSOrigins lists browser origins allowed to call the API with
	// credentials.
	CORSOrigins []string
	// PerIPLimit caps image proxy and upload requests per IP per minute.
	PerIPLimit int
	// WebDistDir, when set, serves the built frontend for unmatched paths.
	WebDistDir string

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	Imports  *handler.Imports
	Recipes  *handler.Recipes
	Tags     *handler.Tags
	Accounts *handler.Accounts
	Login    *handler.Login
	AI       *handler.AI
	Images   *handler.Images
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	perIP := deps.PerIPLimit
	if perIP <= 0 {
		perIP = defaultPerIPLimit
	}
	ipLimit := httprate.LimitByIP(perIP, time.Minute)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	// Public
	r.Get("/api/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", metricsHandler)
	r.Get("/uploads/{name}", deps.Images.Serve)
	r.With(ipLimit).Get("/api/images/proxy", deps.Images.Proxy)

	r.Get("/auth/google", deps.Login.Begin)
	r.Get("/auth/google/callback", deps.Login.Callback)
	r.Post("/logout", deps.Login.Logout)

	// Browsing works signed out; a valid session adds owner visibility.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Optional)

		r.Get("/api/recipes", deps.Recipes.List)
		r.Post("/api/recipes/search", deps.Recipes.Search)
		r.Get("/api/recipes/{id}", deps.Recipes.Get)
		r.Get("/api/recipes/{id}/ratings", deps.Recipes.Ratings)
		r.Get("/api/users/{alias}/recipes", deps.Recipes.ByAlias)
		r.Get("/api/tags", deps.Tags.List)
		r.Get("/api/tags/{id}", deps.Tags.Get)
	})

	// Signed in, approval not required
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/me", deps.Accounts.Me)
		r.Put("/api/me/alias", deps.Accounts.SetAlias)

		// Enabled accounts
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireEnabled)

			r.Post("/api/imports/start", deps.Imports.Start)
			r.Get("/api/imports/status/{jobId}", deps.Imports.Status)
			r.Get("/api/imports/user", deps.Imports.List)
			r.Delete("/api/imports/{jobId}", deps.Imports.Delete)

			r.Post("/api/recipes", deps.Recipes.Create)
			r.Put("/api/recipes/{id}", deps.Recipes.Update)
			r.Delete("/api/recipes/{id}", deps.Recipes.Delete)
			r.Delete("/api/recipes/{id}/versions/{versionId}", deps.Recipes.DeleteVersion)
			r.Post("/api/recipes/{id}/ratings", deps.Recipes.Rate)
			r.With(ipLimit).Post("/api/recipes/upload", deps.Images.Upload)

			r.Post("/api/recipes/import", deps.AI.ImportPreview)
			r.Post("/api/recipes/auto-category", deps.AI.AutoCategory)
			r.Post("/api/recipes/chat", deps.AI.Chat)

			r.Post("/api/tags", deps.Tags.Create)
			r.Put("/api/tags/{id}", deps.Tags.Update)
			r.Delete("/api/tags/{id}", deps.Tags.Delete)

			r.Post("/api/keys", deps.Accounts.CreateKey)
			r.Get("/api/keys", deps.Accounts.ListKeys)
			r.Delete("/api/keys/{keyID}", deps.Accounts.RevokeKey)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)

			r.Get("/api/admin/users", deps.Accounts.ListUsers)
			r.Post("/api/admin/users/{id}/enable", deps.Accounts.Enable)
			r.Post("/api/admin/users/{id}/disable", deps.Accounts.Disable)
			r.Post("/api/admin/imports/cleanup", deps.Imports.Cleanup)
		})
	})

	if deps.WebDistDir != "" {
		r.NotFound(spaHandler(deps.WebDistDir))
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
