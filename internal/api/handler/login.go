package handler

import (
	"net/http"

	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/auth"
)

// Login runs the Google sign-in redirect flow. flow is nil when sign-in is
// not configured; logout still works.
type Login struct {
	flow     *auth.Flow
	sessions *auth.Sessions
	home     string
}

// NewLogin builds the login handlers. home is where the browser lands
// after signing in or out.
func NewLogin(flow *auth.Flow, sessions *auth.Sessions, home string) *Login {
	if home == "" {
		home = "/"
	}
	return &Login{flow: flow, sessions: sessions, home: home}
}

func (h *Login) notConfigured(w http.ResponseWriter) bool {
	if h.flow != nil {
		return false
	}
	response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Google sign-in is not configured", nil)
	return true
}

// Begin handles GET /auth/google.
func (h *Login) Begin(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}
	url, err := h.flow.Begin(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles GET /auth/google/callback.
func (h *Login) Callback(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		response.Error(w, http.StatusBadRequest, "LOGIN_FAILED", "Sign-in was cancelled: "+e, nil)
		return
	}
	session, err := h.flow.Complete(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.SetCookie(w, session.Token, session.Expires)
	http.Redirect(w, r, h.home, http.StatusFound)
}

// Logout handles POST /logout.
func (h *Login) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.ClearCookie(w)
	response.JSON(w, message{Message: "Logged out"})
}
