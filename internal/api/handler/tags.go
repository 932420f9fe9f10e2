package handler

import (
	"net/http"

	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/recipes"
)

type Tags struct {
	svc *recipes.Tags
}

func NewTags(svc *recipes.Tags) *Tags {
	return &Tags{svc: svc}
}

type tagRequest struct {
	Name string `json:"name" validate:"max=50"`
}

func (h *Tags) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, tags)
}

func (h *Tags) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	tag, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, tag)
}

func (h *Tags) Create(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decode(w, r, &req) {
		return
	}
	tag, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, tag)
}

func (h *Tags) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req tagRequest
	if !decode(w, r, &req) {
		return
	}
	tag, err := h.svc.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, tag)
}

func (h *Tags) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
