package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/images"
	"github.com/kiranshivaraju/recipebox/internal/logging"
)

// multipartOverhead is allowed on top of the image size limit for the
// form framing.
const multipartOverhead = 1 << 20

type Images struct {
	svc      *images.Service
	maxBytes int64
}

func NewImages(svc *images.Service, maxBytes int64) *Images {
	if maxBytes <= 0 {
		maxBytes = images.DefaultMaxBytes
	}
	return &Images{svc: svc, maxBytes: maxBytes}
}

// Upload handles POST /api/recipes/upload with a multipart "image" field.
func (h *Images) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, images.ErrTooLarge)
			return
		}
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "No image uploaded", nil)
		return
	}
	defer file.Close()

	url, err := h.svc.Upload(r.Context(), header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, map[string]string{"url": url})
}

// Proxy handles GET /api/images/proxy?url=.
func (h *Images) Proxy(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := h.svc.Proxy(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		slog.Debug("image proxy copy interrupted", logging.Err(err))
	}
}

// Serve handles GET /uploads/{name} for both store backends.
func (h *Images) Serve(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := h.svc.Store().Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// uploaded SVGs must not run script on this origin
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	io.Copy(w, body)
}
