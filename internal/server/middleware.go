package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/session"
)

// Logging returns middleware that logs each request's method, path, and duration.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// SessionHandler is an http handler that additionally receives the resolved
// session token.
type SessionHandler func(w http.ResponseWriter, r *http.Request, tok *session.Token)

// RequireSession resolves a valid token through the session manager before
// the request proceeds. Missing, expired, or unrefreshable tokens render 401;
// the user must re-login via /login.
func RequireSession(sessions *session.Manager, logger *log.Logger, next SessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := sessions.Ensure(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		next(w, r, tok)
	}
}
