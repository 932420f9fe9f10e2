package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

type contextKey string

const (
	userKey      contextKey = "user"
	adminKey     contextKey = "is_admin"
	rateLimitKey contextKey = "rate_limit_subject"
)

// SetUser stores the authenticated user and whether they are the admin.
func SetUser(ctx context.Context, u *models.User, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	ctx = context.WithValue(ctx, adminKey, isAdmin)
	return setRateLimitSubject(ctx, u.ID.String())
}

func GetUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(userKey).(*models.User)
	return u, ok && u != nil
}

// GetUserID returns the authenticated user's id.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	u, ok := GetUser(r)
	if !ok {
		return uuid.Nil, false
	}
	return u.ID, true
}

// ViewerID returns a pointer to the caller's id, or nil when anonymous.
func ViewerID(r *http.Request) *uuid.UUID {
	id, ok := GetUserID(r)
	if !ok {
		return nil
	}
	return &id
}

func IsAdmin(r *http.Request) bool {
	v, _ := r.Context().Value(adminKey).(bool)
	return v
}

func setRateLimitSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, rateLimitKey, subject)
}

func getRateLimitSubject(r *http.Request) (string, bool) {
	s, ok := r.Context().Value(rateLimitKey).(string)
	return s, ok && s != ""
}
