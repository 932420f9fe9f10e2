package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/recipebox/internal/api/response"
)

// Recovery turns a handler panic into a 500 with the generic error body.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
