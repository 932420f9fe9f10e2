package handler

import (
	"net/http"

	"github.com/kiranshivaraju/recipebox/internal/accounts"
	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// Accounts serves the caller's profile, personal API keys, and the admin
// user list.
type Accounts struct {
	svc *accounts.Service
}

func NewAccounts(svc *accounts.Service) *Accounts {
	return &Accounts{svc: svc}
}

type meResponse struct {
	*models.User
	IsAdmin bool `json:"isAdmin"`
	CanUse  bool `json:"canUse"`
}

// Me handles GET /api/me.
func (h *Accounts) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := mw.GetUser(r)
	response.JSON(w, meResponse{User: u, IsAdmin: h.svc.IsAdmin(u), CanUse: h.svc.CanUse(u)})
}

// SetAlias handles PUT /api/me/alias.
func (h *Accounts) SetAlias(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)

	var req struct {
		Alias string `json:"alias" validate:"required"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetAlias(r.Context(), userID, req.Alias); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, u)
}

// ListUsers handles GET /api/admin/users?pending=true.
func (h *Accounts) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), r.URL.Query().Get("pending") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, users)
}

// Enable handles POST /api/admin/users/{id}/enable.
func (h *Accounts) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable handles POST /api/admin/users/{id}/disable.
func (h *Accounts) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Accounts) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.SetEnabled(r.Context(), id, enabled); err != nil {
		writeError(w, r, err)
		return
	}
	msg := "User disabled"
	if enabled {
		msg = "User enabled"
	}
	response.JSON(w, message{Message: msg})
}

// CreateKey handles POST /api/keys. The raw key is only returned here.
func (h *Accounts) CreateKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)

	var req struct {
		Name string `json:"name" validate:"required,max=100"`
	}
	if !decode(w, r, &req) {
		return
	}
	key, err := h.svc.CreateAPIKey(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, key)
}

// ListKeys handles GET /api/keys.
func (h *Accounts) ListKeys(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)
	keys, err := h.svc.ListAPIKeys(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, keys)
}

// RevokeKey handles DELETE /api/keys/{keyID}.
func (h *Accounts) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "keyID")
	if !ok {
		return
	}
	userID, _ := mw.GetUserID(r)
	if err := h.svc.RevokeAPIKey(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
