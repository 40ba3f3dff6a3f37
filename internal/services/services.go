// package services defines interfaces for the external HTTP APIs
//
// Spotify (streaming platform), OpenAI-compatible completion endpoint
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/session"
)

// Streaming is the capability set the orchestrator needs from the streaming
// platform. Every call takes the session token explicitly; implementations
// hold no mutable authentication state.
type Streaming interface {
	// SavedTracks retrieves one page of the user's saved tracks.
	SavedTracks(ctx context.Context, tok *session.Token, limit, offset int) (*SavedTracksPage, error)

	// SearchTrack searches for tracks matching an exact title and artist.
	SearchTrack(ctx context.Context, tok *session.Token, title, artist string) (*SearchResult, error)

	// SearchArtist searches for an artist by name, returning the top match or
	// nil when the catalog has none.
	SearchArtist(ctx context.Context, tok *session.Token, name string) (*Artist, error)

	// ArtistTopTracks retrieves an artist's top tracks in the given market.
	ArtistTopTracks(ctx context.Context, tok *session.Token, artistID, market string) ([]Track, error)

	// CreatePlaylist creates an empty playlist for the authenticated user.
	CreatePlaylist(ctx context.Context, tok *session.Token, name, description string) (*Playlist, error)

	// AddTracks appends tracks to a playlist by URI (≤100 per call).
	AddTracks(ctx context.Context, tok *session.Token, playlistID string, uris []string) error

	// Name returns the name of the service (e.g. "Spotify")
	Name() string
}

// Completer produces playlist suggestions from a completion endpoint.
type Completer interface {
	// SuggestFromLibrary asks for playlist suggestions derived from the
	// user's saved tracks.
	SuggestFromLibrary(ctx context.Context, songs []models.LikedSong) ([]models.SuggestedPlaylist, error)

	// SuggestFromPrompt asks for playlist suggestions for a free-text prompt.
	SuggestFromPrompt(ctx context.Context, prompt string) ([]models.SuggestedPlaylist, error)
}

// Track is a platform track as returned by search and top-tracks lookups.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URI    string `json:"uri"`
}

// Artist is a platform artist reference.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult is one page of track search results.
type SearchResult struct {
	Tracks []Track `json:"tracks"`
	Total  int     `json:"total"`
}

// SavedTracksPage is one page of the user's saved tracks.
type SavedTracksPage struct {
	Items  []models.LikedSong `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// Playlist is a platform playlist reference.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// APIError is a non-2xx response from an external API, carrying the platform
// status and reason for user-visible error messages.
type APIError struct {
	Service string
	Status  int
	Reason  string

	// Retry-After hint in seconds, present on rate-limit responses.
	Hint    time.Duration
	HasHint bool
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s API error: status %d", e.Service, e.Status)
}

// RetryAfter reports the server-specified wait for rate-limit responses.
//
// Only 429 responses are retryable; other statuses report no hint and are
// never retried by the queue.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.Status != 429 {
		return 0, false
	}
	return e.Hint, e.HasHint
}

// Retryable reports whether the error is a rate-limit signal.
func (e *APIError) Retryable() bool {
	return e.Status == 429
}
