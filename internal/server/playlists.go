package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/session"
	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/tasks"
)

// LandingHandler serves the entry page with links into the flows.
type LandingHandler struct{}

func (h *LandingHandler) Routes() []string {
	return []string{"/{$}"}
}

func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>mixgen</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               max-width: 640px; margin: 4rem auto; color: #222; }
        h1 { color: #1DB954; }
        li { margin: 0.5rem 0; }
        code { background: #f0f0f0; padding: 0.1rem 0.3rem; border-radius: 4px; }
    </style>
</head>
<body>
    <h1>mixgen</h1>
    <p>Generate Spotify playlists from your liked songs with a little help from a language model.</p>
    <ul>
        <li><a href="/login">Log in with Spotify</a></li>
        <li><a href="/liked-songs">View liked songs</a> (JSON)</li>
        <li><a href="/generate-playlists">Generate playlist suggestions</a> (JSON)</li>
        <li><a href="/preview-playlists">Create &amp; preview playlists</a></li>
        <li><code>POST /create-custom-playlist {"prompt": "..."}</code></li>
    </ul>
</body>
</html>
`)
}

// PlaylistHandler serves the API-dependent routes. Every route resolves a
// valid session token first; see Register.
type PlaylistHandler struct {
	engine   *tasks.Engine
	sessions *session.Manager
	logger   *log.Logger
}

// NewPlaylistHandler creates a PlaylistHandler driving the given engine.
func NewPlaylistHandler(engine *tasks.Engine, sessions *session.Manager, logger *log.Logger) *PlaylistHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PlaylistHandler{engine: engine, sessions: sessions, logger: logger}
}

// Register wires the handler's routes into the router with method filtering
// and the session requirement applied per route.
func (h *PlaylistHandler) Register(router Router) {
	router.Handle(http.MethodGet, "/liked-songs", RequireSession(h.sessions, h.logger, h.likedSongs))
	router.Handle(http.MethodGet, "/generate-playlists", RequireSession(h.sessions, h.logger, h.generatePlaylists))
	router.Handle(http.MethodGet, "/preview-playlists", RequireSession(h.sessions, h.logger, h.previewPlaylists))
	router.Handle(http.MethodPost, "/create-custom-playlist", RequireSession(h.sessions, h.logger, h.createCustom))
}

// likedSongs returns the user's full saved-tracks library as JSON.
func (h *PlaylistHandler) likedSongs(w http.ResponseWriter, r *http.Request, tok *session.Token) {
	songs, err := h.engine.LikedSongs(r.Context(), tok)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(songs),
		"songs": songs,
	})
}

// generatePlaylists returns playlist suggestions without creating anything on
// the platform. In dev mode the suggestions are snapshot-backed.
func (h *PlaylistHandler) generatePlaylists(w http.ResponseWriter, r *http.Request, tok *session.Token) {
	suggestions, err := h.engine.GeneratePlaylists(r.Context(), tok)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(suggestions),
		"playlists": suggestions,
	})
}

// previewPlaylists runs the bulk flow and renders the created playlists as an
// HTML page of platform embeds.
func (h *PlaylistHandler) previewPlaylists(w http.ResponseWriter, r *http.Request, tok *session.Token) {
	created, err := h.engine.CreatePlaylists(r.Context(), tok)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var embeds strings.Builder
	for _, playlist := range created {
		fmt.Fprintf(&embeds, "<section><h2>%s</h2>\n%s\n</section>\n", playlist.Name, playlist.EmbedHTML)
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Your generated playlists</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               max-width: 720px; margin: 3rem auto; color: #222; }
        h1 { color: #1DB954; }
        section { margin: 2rem 0; }
    </style>
</head>
<body>
    <h1>Your generated playlists</h1>
    %s
</body>
</html>
`, embeds.String())
}

type customPlaylistRequest struct {
	Prompt string `json:"prompt"`
}

// createCustom runs the custom-prompt flow for a single playlist.
func (h *PlaylistHandler) createCustom(w http.ResponseWriter, r *http.Request, tok *session.Token) {
	var req customPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid request body", shared.ErrInvalidInput))
		return
	}

	created, err := h.engine.CreateCustom(r.Context(), tok, req.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}
