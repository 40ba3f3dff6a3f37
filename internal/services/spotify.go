// Spotify API implementation of [Streaming]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/session"
	"github.com/desertthunder/mixgen/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// defaultRate is the client-side requests-per-second guard, applied on
	// top of the queue's inter-request delay.
	defaultRate = 5.0
)

// NewSpotifyOAuthConfig builds the OAuth2 authorization-code config for the
// given credentials.
func NewSpotifyOAuthConfig(cfg shared.SpotifyConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-library-read",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}, nil
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifySavedTrack `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Next   *string             `json:"next"`
}

type trackPage struct {
	Items []SpotifyTrack `json:"items"`
	Total int            `json:"total"`
}

type artistPage struct {
	Items []SpotifyArtist `json:"items"`
	Total int             `json:"total"`
}

type searchResponse struct {
	Tracks  *trackPage  `json:"tracks"`
	Artists *artistPage `json:"artists"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [Streaming] against the Spotify Web API.
//
// The service holds no token state; the session record is passed to every
// call. A [rate.Limiter] paces requests as a client-side guard.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSpotifyService creates a Spotify client. A nil http.Client falls back to
// [http.DefaultClient]; rps <= 0 falls back to the default guard.
func NewSpotifyService(client *http.Client, rps float64) *SpotifyService {
	if client == nil {
		client = http.DefaultClient
	}
	if rps <= 0 {
		rps = defaultRate
	}

	return &SpotifyService{
		baseURL:    spotifyBaseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated HTTP request to the Spotify API.
//
// Non-2xx responses become an [*APIError] carrying the platform status and
// reason; 429 responses additionally carry the Retry-After hint.
func (s *SpotifyService) doRequest(ctx context.Context, tok *session.Token, method, endpoint string, body, result any) error {
	if tok == nil || tok.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	apiURL := s.baseURL + endpoint

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.apiError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// apiError converts a non-2xx response into an *APIError.
func (s *SpotifyService) apiError(resp *http.Response) error {
	apiErr := &APIError{Service: "spotify", Status: resp.StatusCode}

	var body spotifyErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Reason = body.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				apiErr.Hint = time.Duration(seconds) * time.Second
				apiErr.HasHint = true
			}
		}
	}

	return apiErr
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, tok *session.Token, limit, offset int) (*SavedTracksPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, tok, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	page := &SavedTracksPage{
		Total:  response.Total,
		Limit:  response.Limit,
		Offset: response.Offset,
		Items:  make([]models.LikedSong, len(response.Items)),
	}
	for i, item := range response.Items {
		song := models.LikedSong{
			Title: item.Track.Name,
			ID:    item.Track.ID,
		}
		if len(item.Track.Artists) > 0 {
			song.Artist = item.Track.Artists[0].Name
		}
		page.Items[i] = song
	}

	return page, nil
}

// SearchTrack searches for tracks matching an exact title and artist.
func (s *SpotifyService) SearchTrack(ctx context.Context, tok *session.Token, title, artist string) (*SearchResult, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=5", url.QueryEscape(query))

	var response searchResponse
	if err := s.doRequest(ctx, tok, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	if response.Tracks != nil {
		result.Total = response.Tracks.Total
		result.Tracks = make([]Track, len(response.Tracks.Items))
		for i, st := range response.Tracks.Items {
			result.Tracks[i] = toTrack(st)
		}
	}

	return result, nil
}

// SearchArtist searches for an artist by name, returning the top match or nil
// when the catalog has none.
func (s *SpotifyService) SearchArtist(ctx context.Context, tok *session.Token, name string) (*Artist, error) {
	endpoint := fmt.Sprintf("/search?q=%s&type=artist&limit=1", url.QueryEscape(name))

	var response searchResponse
	if err := s.doRequest(ctx, tok, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	if response.Artists == nil || len(response.Artists.Items) == 0 {
		return nil, nil
	}

	top := response.Artists.Items[0]
	return &Artist{ID: top.ID, Name: top.Name}, nil
}

// ArtistTopTracks retrieves an artist's top tracks in the given market.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, tok *session.Token, artistID, market string) ([]Track, error) {
	endpoint := fmt.Sprintf("/artists/%s/top-tracks?market=%s", artistID, url.QueryEscape(market))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, tok, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, len(response.Tracks))
	for i, st := range response.Tracks {
		tracks[i] = toTrack(st)
	}

	return tracks, nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, tok *session.Token) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, tok, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePlaylist creates an empty private playlist for the authenticated user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, tok *session.Token, name, description string) (*Playlist, error) {
	user, err := s.UserProfile(ctx, tok)
	if err != nil {
		return nil, err
	}

	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}{Name: name, Description: description, Public: false}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))

	var created struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := s.doRequest(ctx, tok, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &Playlist{ID: created.ID, Name: created.Name, Description: created.Description}, nil
}

// AddTracks appends up to 100 tracks to a playlist by URI.
func (s *SpotifyService) AddTracks(ctx context.Context, tok *session.Token, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	if len(uris) > 100 {
		return fmt.Errorf("%w: maximum 100 track URIs per request", shared.ErrInvalidInput)
	}

	body := struct {
		URIs []string `json:"uris"`
	}{URIs: uris}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, tok, http.MethodPost, endpoint, body, nil)
}

func toTrack(st SpotifyTrack) Track {
	track := Track{
		ID:    st.ID,
		Title: st.Name,
		URI:   st.URI,
	}
	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}
	if track.URI == "" && track.ID != "" {
		track.URI = "spotify:track:" + track.ID
	}
	return track
}
