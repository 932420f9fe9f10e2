package response

import (
	"net/http"

	json "github.com/goccy/go-json"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

// Plain writes v as the whole body, without the data envelope. Used by
// endpoints whose clients read the bare object or array.
func Plain(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Raw writes body unchanged. Used to relay upstream answers as they came.
func Raw(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
