package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/auth"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

// --- Mock users ---

type mockUsers struct {
	users   map[uuid.UUID]*models.User
	keys    map[string]uuid.UUID
	admin   string
	lookErr error
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: map[uuid.UUID]*models.User{}, keys: map[string]uuid.UUID{}, admin: "admin@example.com"}
}

func (m *mockUsers) add(email string, enabled bool) *models.User {
	u := &models.User{ID: uuid.New(), Email: email, IsEnabled: enabled}
	m.users[u.ID] = u
	return u
}

func (m *mockUsers) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	if m.lookErr != nil {
		return nil, m.lookErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *mockUsers) ResolveAPIKey(_ context.Context, raw string) (*models.User, error) {
	if m.lookErr != nil {
		return nil, m.lookErr
	}
	id, ok := m.keys[raw]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.users[id], nil
}

func (m *mockUsers) IsAdmin(u *models.User) bool { return auth.IsAdmin(u.Email, m.admin) }
func (m *mockUsers) CanUse(u *models.User) bool  { return u.IsEnabled || m.IsAdmin(u) }

// --- Mock cache ---

type mockCache struct {
	counter int64
	err     error
	keys    []string
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Take(_ context.Context, _ string) ([]byte, bool, error)           { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                          { return nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) SetImportStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (m *mockCache) GetImportStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.keys = append(m.keys, key)
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func sessionCookie(t *testing.T, s *auth.Sessions, u *models.User) *http.Cookie {
	t.Helper()
	token, _, err := s.Issue(u.ID, u.Email)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: token}
}

func newAuth() (*mw.Auth, *mockUsers, *auth.Sessions) {
	users := newMockUsers()
	sessions := auth.NewSessions(testSecret, time.Hour, false)
	return mw.NewAuth(sessions, users), users, sessions
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_NoCredentials(t *testing.T) {
	a, _, _ := newAuth()
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	a, _, _ := newAuth()
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_UnknownAPIKey(t *testing.T) {
	a, _, _ := newAuth()
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer rb_doesnotexist")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidAPIKey(t *testing.T) {
	a, users, _ := newAuth()
	u := users.add("cook@example.com", true)
	users.keys["rb_valid_key"] = u.ID

	var got *models.User
	handler := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetUser(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer rb_valid_key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuth_ValidSessionCookie(t *testing.T) {
	a, users, sessions := newAuth()
	u := users.add("cook@example.com", true)

	var gotID uuid.UUID
	var admin bool
	handler := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = mw.GetUserID(r)
		admin = mw.IsAdmin(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(sessionCookie(t, sessions, u))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, u.ID, gotID)
	assert.False(t, admin)
}

func TestAuth_TamperedSessionCookie(t *testing.T) {
	a, users, _ := newAuth()
	u := users.add("cook@example.com", true)
	forged := auth.NewSessions("some-other-secret-0123456789abcdef", time.Hour, false)

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(sessionCookie(t, forged, u))
	w := httptest.NewRecorder()
	a.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_SessionForDeletedUser(t *testing.T) {
	a, _, sessions := newAuth()
	ghost := &models.User{ID: uuid.New(), Email: "ghost@example.com"}

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(sessionCookie(t, sessions, ghost))
	w := httptest.NewRecorder()
	a.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_LookupError(t *testing.T) {
	a, users, _ := newAuth()
	users.lookErr = errors.New("db down")

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer rb_anything")
	w := httptest.NewRecorder()
	a.Authenticate(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestAuth_OptionalPassesAnonymous(t *testing.T) {
	a, _, _ := newAuth()

	var hasUser bool
	handler := a.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasUser = mw.GetUser(r)
		assert.Nil(t, mw.ViewerID(r))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer rb_unknown")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, hasUser)
}

func TestAuth_RequireEnabled(t *testing.T) {
	a, users, sessions := newAuth()
	pending := users.add("new@example.com", false)
	admin := users.add("admin@example.com", false)
	enabled := users.add("ok@example.com", true)

	handler := a.Authenticate(a.RequireEnabled(okHandler()))

	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"pending account", pending, http.StatusForbidden},
		{"admin is always allowed", admin, http.StatusOK},
		{"enabled account", enabled, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.AddCookie(sessionCookie(t, sessions, tt.user))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				e := errBody(t, w)
				assert.Equal(t, "ACCOUNT_PENDING", e["code"])
				assert.Equal(t, "Account pending approval", e["message"])
			}
		})
	}
}

func TestAuth_RequireAdmin(t *testing.T) {
	a, users, sessions := newAuth()
	admin := users.add("Admin@Example.com", true)
	cook := users.add("cook@example.com", true)

	handler := a.Authenticate(a.RequireAdmin(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(sessionCookie(t, sessions, cook))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])

	req = httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(sessionCookie(t, sessions, admin))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withUser(req *http.Request) (*http.Request, uuid.UUID) {
	u := &models.User{ID: uuid.New()}
	return req.WithContext(mw.SetUser(req.Context(), u, false)), u.ID
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60)
	handler := rl.Limit(okHandler())

	req, userID := withUser(httptest.NewRequest("GET", "/test", nil))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	require.Len(t, mc.keys, 1)
	assert.Contains(t, mc.keys[0], userID.String())
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60}
	rl := mw.NewRateLimit(mc, 60)
	handler := rl.Limit(okHandler())

	req, _ := withUser(httptest.NewRequest("GET", "/test", nil))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 1)
	handler := rl.Limit(okHandler())

	req, _ := withUser(httptest.NewRequest("GET", "/test", nil))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_Anonymous_PassThrough(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60)
	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_PassesStatusThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(mw.Logger)
	r.Get("/recipes/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/recipes/123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}
