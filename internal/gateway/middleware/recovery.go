// Package middleware provides the gateway's HTTP middleware chain.
package middleware

import (
	"net/http"
	"runtime/debug"

	"prettycode/internal/gateway/handlers"
	"prettycode/pkg/logger"
)

// Recovery converts a handler panic into a 500 response so one bad request
// cannot take the gateway down.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error().
					Interface("panic", v).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Handler panicked")

				handlers.SendError(w, http.StatusInternalServerError,
					handlers.ErrCodeInternalError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
