package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/session"
	"github.com/desertthunder/mixgen/internal/shared"
)

// AuthHandler handles the OAuth2 authorization-code flow against the
// streaming platform: /login redirects to the provider, /callback exchanges
// the code for a token record and persists it.
type AuthHandler struct {
	sessions *session.Manager
	logger   *log.Logger

	mu    sync.Mutex
	state string
}

// NewAuthHandler creates an AuthHandler backed by the given session manager.
func NewAuthHandler(sessions *session.Manager, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AuthHandler{sessions: sessions, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/login", "/callback"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login redirects to the provider's authorization page with a fresh state token.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateID()

	h.mu.Lock()
	h.state = state
	h.mu.Unlock()

	http.Redirect(w, r, h.sessions.AuthURL(state), http.StatusTemporaryRedirect)
}

// callback validates the state parameter and exchanges the authorization code
// for a persisted token record.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	expected := h.state
	h.mu.Unlock()

	if state := r.URL.Query().Get("state"); expected == "" || state != expected {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		h.logger.Warn("authorization denied", "error", errParam)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.Exchange(r.Context(), code); err != nil {
		h.logger.Error("token exchange failed", "err", err)
		http.Error(w, "Token exchange failed", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
        a { color: #1DB954; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You are logged in. Head back to the <a href="/">home page</a> to generate playlists.</p>
    </div>
</body>
</html>
`)
}
