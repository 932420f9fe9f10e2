package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/auth"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// Users resolves the caller behind a session or API key.
type Users interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	ResolveAPIKey(ctx context.Context, raw string) (*models.User, error)
	IsAdmin(u *models.User) bool
	CanUse(u *models.User) bool
}

// Auth provides authentication and access-checking middleware.
type Auth struct {
	sessions *auth.Sessions
	users    Users
}

// NewAuth creates a new Auth middleware.
func NewAuth(sessions *auth.Sessions, users Users) *Auth {
	return &Auth{sessions: sessions, users: users}
}

// Authenticate requires a valid session cookie or Bearer API key and sets
// the user in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.identify(r)
		switch {
		case err != nil:
			slog.Error("authentication failed", logging.Err(err))
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate credentials", nil)
			return
		case u == nil:
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Authentication required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), u, a.users.IsAdmin(u))))
	})
}

// Optional sets the user when credentials are present and valid, and
// otherwise lets the request through anonymously.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, err := a.identify(r); err == nil && u != nil {
			r = r.WithContext(SetUser(r.Context(), u, a.users.IsAdmin(u)))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireEnabled rejects accounts that are still waiting for approval.
// Must run after Authenticate.
func (a *Auth) RequireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := GetUser(r)
		if !ok || !a.users.CanUse(u) {
			response.Error(w, http.StatusForbidden,
				"ACCOUNT_PENDING", "Account pending approval", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects everyone but the configured admin. Must run after
// Authenticate.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r) {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identify returns (nil, nil) when the request carries no valid
// credentials, and an error only when a lookup fails.
func (a *Auth) identify(r *http.Request) (*models.User, error) {
	if raw := extractBearerToken(r); raw != "" {
		u, err := a.users.ResolveAPIKey(r.Context(), raw)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return u, err
	}

	token := auth.FromRequest(r)
	if token == "" {
		return nil, nil
	}
	id, err := a.sessions.Parse(token)
	if err != nil {
		return nil, nil
	}
	u, err := a.users.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
