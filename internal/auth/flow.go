package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/recipebox/internal/cache"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

const stateTTL = 10 * time.Minute

// Flow runs the browser login: redirect out with a one-time state, and on
// callback exchange the code, upsert the user, and issue a session.
type Flow struct {
	provider   Provider
	cache      cache.Cache
	users      store.UsersStore
	sessions   *Sessions
	adminEmail string
}

func NewFlow(p Provider, c cache.Cache, users store.UsersStore, sessions *Sessions, adminEmail string) *Flow {
	return &Flow{provider: p, cache: c, users: users, sessions: sessions, adminEmail: adminEmail}
}

func (f *Flow) Sessions() *Sessions { return f.sessions }

// Begin stores a fresh state and returns the provider URL to redirect to.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	state, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := f.cache.Set(ctx, cache.OIDCStateKey(state), []byte("1"), stateTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return f.provider.AuthURL(state), nil
}

// Session is the outcome of a completed login.
type Session struct {
	User    *models.User
	Token   string
	Expires time.Time
}

// Complete consumes state, exchanges code, and signs the user in. New users
// start disabled unless they are the admin.
func (f *Flow) Complete(ctx context.Context, code, state string) (*Session, error) {
	if state == "" || code == "" {
		return nil, ErrInvalidState
	}
	_, ok, err := f.cache.Take(ctx, cache.OIDCStateKey(state))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	id, err := f.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, ErrEmailMissing
	}

	name := id.Name
	if name == "" {
		name = email
	}
	u := &models.User{
		Email:        email,
		Name:         name,
		OIDCProvider: id.Provider,
		OIDCSubject:  id.Subject,
		IsEnabled:    IsAdmin(email, f.adminEmail),
	}
	if id.Picture != "" {
		u.Picture = &id.Picture
	}
	user, err := f.users.UpsertOIDCUser(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	token, expires, err := f.sessions.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed in", "user_id", user.ID, "enabled", user.IsEnabled)
	return &Session{User: user, Token: token, Expires: expires}, nil
}
