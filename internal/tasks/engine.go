package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/queue"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/session"
	"github.com/desertthunder/mixgen/internal/shared"
)

const (
	// likedPageSize is the saved-tracks pagination page size.
	likedPageSize = 50

	// addTracksBatch is the add-tracks API's per-request ceiling.
	addTracksBatch = 100

	// Platform limits on playlist metadata, applied after trimming.
	maxNameLen        = 100
	maxDescriptionLen = 300
)

// Engine drives the end-to-end playlist generation flows.
type Engine struct {
	service   services.Streaming
	completer services.Completer
	resolver  *Resolver
	queue     *queue.Queue
	logger    *log.Logger

	// devMode caches suggestions in snapshotPath to avoid repeated
	// completion calls during development.
	devMode      bool
	snapshotPath string
}

// EngineOpts contains dependencies and configuration for creating an Engine.
type EngineOpts struct {
	Service      services.Streaming
	Completer    services.Completer
	Queue        *queue.Queue
	Logger       *log.Logger
	DevMode      bool
	SnapshotPath string
}

// NewEngine creates an Engine with the provided dependencies.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Queue == nil {
		opts.Queue = queue.New(queue.Options{Logger: opts.Logger})
	}

	return &Engine{
		service:      opts.Service,
		completer:    opts.Completer,
		resolver:     NewResolver(opts.Service, opts.Queue, opts.Logger),
		queue:        opts.Queue,
		logger:       opts.Logger,
		devMode:      opts.DevMode,
		snapshotPath: opts.SnapshotPath,
	}
}

// LikedSongs fetches the user's entire saved-tracks library, paging until the
// reported total is exhausted. Pages are concatenated in order.
func (e *Engine) LikedSongs(ctx context.Context, tok *session.Token) ([]models.LikedSong, error) {
	var all []models.LikedSong
	offset := 0

	for {
		page, err := queue.Await[*services.SavedTracksPage](e.queue.Submit(ctx, func(ctx context.Context) (any, error) {
			return e.service.SavedTracks(ctx, tok, likedPageSize, offset)
		}))
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)
		offset += likedPageSize

		if offset >= page.Total || len(page.Items) == 0 {
			break
		}
	}

	return all, nil
}

// GeneratePlaylists obtains playlist suggestions for the liked-songs corpus.
//
// In dev mode a snapshot file short-circuits the completion call when
// present, and fresh suggestions are written back to it.
func (e *Engine) GeneratePlaylists(ctx context.Context, tok *session.Token) ([]models.SuggestedPlaylist, error) {
	if e.devMode {
		if suggestions, err := e.readSnapshot(); err == nil {
			e.logger.Info("using playlist snapshot", "path", e.snapshotPath, "playlists", len(suggestions))
			return suggestions, nil
		}
	}

	songs, err := e.LikedSongs(ctx, tok)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.completer.SuggestFromLibrary(ctx, songs)
	if err != nil {
		return nil, err
	}

	if e.devMode {
		if err := e.writeSnapshot(suggestions); err != nil {
			e.logger.Warn("failed to write playlist snapshot", "err", err)
		}
	}

	return suggestions, nil
}

// CreatePlaylists runs the bulk flow: one created playlist per suggestion.
//
// A suggestion that resolves to zero tracks is skipped; a playlist-level
// failure is logged and skipped. Zero created playlists is an overall
// failure (ErrNoPlaylists).
func (e *Engine) CreatePlaylists(ctx context.Context, tok *session.Token) ([]models.CreatedPlaylist, error) {
	suggestions, err := e.GeneratePlaylists(ctx, tok)
	if err != nil {
		return nil, err
	}

	var created []models.CreatedPlaylist
	for _, suggestion := range suggestions {
		playlist, err := e.createOne(ctx, tok, suggestion)
		if err != nil {
			e.logger.Warn("skipping playlist", "name", suggestion.Name, "err", err)
			continue
		}
		if playlist == nil {
			e.logger.Info("no tracks resolved, skipping playlist", "name", suggestion.Name)
			continue
		}
		created = append(created, *playlist)
	}

	if len(created) == 0 {
		return nil, shared.ErrNoPlaylists
	}

	return created, nil
}

// CreateCustom runs the custom-prompt flow: a single playlist generated from
// free text instead of the liked-songs corpus.
func (e *Engine) CreateCustom(ctx context.Context, tok *session.Token, prompt string) (*models.CreatedPlaylist, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", shared.ErrInvalidInput)
	}

	suggestions, err := e.completer.SuggestFromPrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("%w: completion returned no playlists", shared.ErrBadSuggestion)
	}

	playlist, err := e.createOne(ctx, tok, suggestions[0])
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("%w: no suggested songs could be resolved", shared.ErrTrackNotFound)
	}

	return playlist, nil
}

// createOne resolves, creates, and populates a single suggested playlist.
//
// Returns (nil, nil) when zero tracks resolve, which callers treat as a skip
// rather than a failure.
func (e *Engine) createOne(ctx context.Context, tok *session.Token, suggestion models.SuggestedPlaylist) (*models.CreatedPlaylist, error) {
	resolved := e.resolver.Resolve(ctx, tok, suggestion.Songs)

	uris := make([]string, 0, len(resolved))
	for _, uri := range resolved {
		if uri != "" {
			uris = append(uris, uri)
		}
	}
	if len(uris) == 0 {
		return nil, nil
	}

	name := shared.Truncate(suggestion.Name, maxNameLen)
	description := shared.Truncate(suggestion.Description, maxDescriptionLen)

	playlist, err := queue.Await[*services.Playlist](e.queue.Submit(ctx, func(ctx context.Context) (any, error) {
		return e.service.CreatePlaylist(ctx, tok, name, description)
	}))
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(uris); start += addTracksBatch {
		chunk := uris[start:min(start+addTracksBatch, len(uris))]
		if _, err := queue.Await[any](e.queue.Submit(ctx, func(ctx context.Context) (any, error) {
			return nil, e.service.AddTracks(ctx, tok, playlist.ID, chunk)
		})); err != nil {
			return nil, err
		}
	}

	e.logger.Info("created playlist", "id", playlist.ID, "name", name, "tracks", len(uris))

	return &models.CreatedPlaylist{
		ID:         playlist.ID,
		Name:       name,
		TrackCount: len(uris),
		EmbedHTML:  EmbedMarkup(playlist.ID),
	}, nil
}

// EmbedMarkup returns the platform's iframe embed snippet for a playlist.
func EmbedMarkup(playlistID string) string {
	return fmt.Sprintf(
		`<iframe style="border-radius:12px" src="https://open.spotify.com/embed/playlist/%s" width="100%%" height="380" frameborder="0" allow="autoplay; clipboard-write; encrypted-media; fullscreen; picture-in-picture" loading="lazy"></iframe>`,
		playlistID,
	)
}

func (e *Engine) readSnapshot() ([]models.SuggestedPlaylist, error) {
	data, err := os.ReadFile(e.snapshotPath)
	if err != nil {
		return nil, err
	}

	var suggestions []models.SuggestedPlaylist
	if err := json.Unmarshal(data, &suggestions); err != nil {
		return nil, fmt.Errorf("corrupt playlist snapshot: %w", err)
	}

	return suggestions, nil
}

func (e *Engine) writeSnapshot(suggestions []models.SuggestedPlaylist) error {
	if e.snapshotPath == "" {
		return fmt.Errorf("no snapshot path configured")
	}

	if err := os.MkdirAll(filepath.Dir(e.snapshotPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(suggestions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(e.snapshotPath, data, 0644)
}
