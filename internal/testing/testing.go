// package testing contains shared testing utilities
package testing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/session"
)

// MockStreaming is a configurable test double for [services.Streaming].
//
// Each method records its name in Calls, then delegates to the corresponding
// function field when set and returns zero values otherwise.
type MockStreaming struct {
	SavedTracksFunc     func(limit, offset int) (*services.SavedTracksPage, error)
	SearchTrackFunc     func(title, artist string) (*services.SearchResult, error)
	SearchArtistFunc    func(name string) (*services.Artist, error)
	ArtistTopTracksFunc func(artistID, market string) ([]services.Track, error)
	CreatePlaylistFunc  func(name, description string) (*services.Playlist, error)
	AddTracksFunc       func(playlistID string, uris []string) error

	mu    sync.Mutex
	calls []string
}

func (m *MockStreaming) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

// Calls returns the ordered method names invoked so far.
func (m *MockStreaming) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the named method was invoked.
func (m *MockStreaming) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *MockStreaming) SavedTracks(ctx context.Context, tok *session.Token, limit, offset int) (*services.SavedTracksPage, error) {
	m.record("SavedTracks")
	if m.SavedTracksFunc != nil {
		return m.SavedTracksFunc(limit, offset)
	}
	return &services.SavedTracksPage{}, nil
}

func (m *MockStreaming) SearchTrack(ctx context.Context, tok *session.Token, title, artist string) (*services.SearchResult, error) {
	m.record("SearchTrack")
	if m.SearchTrackFunc != nil {
		return m.SearchTrackFunc(title, artist)
	}
	return &services.SearchResult{}, nil
}

func (m *MockStreaming) SearchArtist(ctx context.Context, tok *session.Token, name string) (*services.Artist, error) {
	m.record("SearchArtist")
	if m.SearchArtistFunc != nil {
		return m.SearchArtistFunc(name)
	}
	return nil, nil
}

func (m *MockStreaming) ArtistTopTracks(ctx context.Context, tok *session.Token, artistID, market string) ([]services.Track, error) {
	m.record("ArtistTopTracks")
	if m.ArtistTopTracksFunc != nil {
		return m.ArtistTopTracksFunc(artistID, market)
	}
	return nil, nil
}

func (m *MockStreaming) CreatePlaylist(ctx context.Context, tok *session.Token, name, description string) (*services.Playlist, error) {
	m.record("CreatePlaylist")
	if m.CreatePlaylistFunc != nil {
		return m.CreatePlaylistFunc(name, description)
	}
	return &services.Playlist{ID: "mock-playlist", Name: name, Description: description}, nil
}

func (m *MockStreaming) AddTracks(ctx context.Context, tok *session.Token, playlistID string, uris []string) error {
	m.record("AddTracks")
	if m.AddTracksFunc != nil {
		return m.AddTracksFunc(playlistID, uris)
	}
	return nil
}

func (m *MockStreaming) Name() string { return "mock" }

// MockCompleter is a configurable test double for [services.Completer].
type MockCompleter struct {
	FromLibraryFunc func(songs []models.LikedSong) ([]models.SuggestedPlaylist, error)
	FromPromptFunc  func(prompt string) ([]models.SuggestedPlaylist, error)

	mu    sync.Mutex
	calls int
}

// CallCount returns how many completion calls were made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockCompleter) SuggestFromLibrary(ctx context.Context, songs []models.LikedSong) ([]models.SuggestedPlaylist, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.FromLibraryFunc != nil {
		return m.FromLibraryFunc(songs)
	}
	return nil, nil
}

func (m *MockCompleter) SuggestFromPrompt(ctx context.Context, prompt string) ([]models.SuggestedPlaylist, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.FromPromptFunc != nil {
		return m.FromPromptFunc(prompt)
	}
	return nil, nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// TestToken returns a session token valid far into the future.
func TestToken() *session.Token {
	return &session.Token{
		AccessToken:  "test_access_token",
		RefreshToken: "test_refresh_token",
		Expiry:       time.Now().Add(time.Hour),
	}
}
