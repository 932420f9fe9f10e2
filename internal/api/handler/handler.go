// Package handler implements the HTTP endpoints. Handlers decode and
// validate requests, call a service, and map its errors onto status codes.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/accounts"
	"github.com/kiranshivaraju/recipebox/internal/aiclient"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/auth"
	"github.com/kiranshivaraju/recipebox/internal/images"
	"github.com/kiranshivaraju/recipebox/internal/importer"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/recipes"
	"github.com/kiranshivaraju/recipebox/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false. An empty body decodes as {}.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := map[string][]string{}
			for _, fe := range verrs {
				details[fe.Field()] = append(details[fe.Field()], validationMessage(fe))
			}
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", details)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		return fe.Field() + " is invalid"
	}
}

// uuidParam parses a UUID path parameter. An unparsable id is reported as
// not found since no such resource can exist.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type message struct {
	Message string `json:"message"`
}

// writeError maps a service error onto the HTTP error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var upErr *aiclient.UpstreamError
	switch {
	case errors.As(err, &upErr):
		response.Raw(w, upErr.StatusCode, "application/json", upErr.Body)

	case errors.Is(err, store.ErrNotFound), errors.Is(err, images.ErrNotFound), errors.Is(err, images.ErrInvalidName):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)

	case errors.Is(err, recipes.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)

	case errors.Is(err, importer.ErrURLRequired):
		response.Error(w, http.StatusBadRequest, "URL_REQUIRED", "URL is required", nil)
	case errors.Is(err, recipes.ErrDuplicateTitle):
		response.Error(w, http.StatusBadRequest, "DUPLICATE_TITLE", err.Error(), nil)
	case errors.Is(err, recipes.ErrTitleRequired),
		errors.Is(err, recipes.ErrInvalidRating),
		errors.Is(err, recipes.ErrVersionRequired),
		errors.Is(err, recipes.ErrTagNameRequired),
		errors.Is(err, accounts.ErrAliasRequired),
		errors.Is(err, accounts.ErrAliasInvalid),
		errors.Is(err, accounts.ErrNameRequired):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, images.ErrUnsupportedType):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", err.Error(), nil)
	case errors.Is(err, images.ErrInvalidURL):
		response.Error(w, http.StatusBadRequest, "INVALID_URL", "Invalid image URL", nil)
	case errors.Is(err, auth.ErrInvalidState), errors.Is(err, auth.ErrEmailMissing):
		response.Error(w, http.StatusBadRequest, "LOGIN_FAILED", err.Error(), nil)

	case errors.Is(err, recipes.ErrDuplicateTag):
		response.Error(w, http.StatusConflict, "DUPLICATE_TAG", err.Error(), nil)
	case errors.Is(err, accounts.ErrAliasTaken):
		response.Error(w, http.StatusConflict, "ALIAS_TAKEN", err.Error(), nil)

	case errors.Is(err, images.ErrTooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)

	case errors.Is(err, images.ErrUpstream):
		response.Error(w, http.StatusBadGateway, "IMAGE_FETCH_FAILED", "Failed to fetch image", nil)
	case errors.Is(err, aiclient.ErrServiceUnavailable):
		response.Error(w, http.StatusBadGateway, "AI_SERVICE_UNAVAILABLE", "The AI service is not available", nil)
	case errors.Is(err, aiclient.ErrInvalidResponse):
		response.Error(w, http.StatusBadGateway, "AI_INVALID_RESPONSE", "The AI service returned an invalid response", nil)
	case errors.Is(err, aiclient.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_SERVICE_TIMEOUT", "The AI service took too long to respond", nil)

	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, logging.Err(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
