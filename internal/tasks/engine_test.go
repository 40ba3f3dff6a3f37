package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
	tu "github.com/desertthunder/mixgen/internal/testing"
)

func testEngine(mock *tu.MockStreaming, completer services.Completer) *Engine {
	return NewEngine(EngineOpts{
		Service:   mock,
		Completer: completer,
		Queue:     fastQueue(),
		Logger:    quietLogger(),
	})
}

// pagedLibrary fabricates a saved-tracks backend of the given size.
func pagedLibrary(total int) func(limit, offset int) (*services.SavedTracksPage, error) {
	return func(limit, offset int) (*services.SavedTracksPage, error) {
		page := &services.SavedTracksPage{Total: total, Limit: limit, Offset: offset}
		for i := offset; i < min(offset+limit, total); i++ {
			page.Items = append(page.Items, models.LikedSong{
				Title:  fmt.Sprintf("song %d", i),
				Artist: "artist",
				ID:     fmt.Sprintf("id%d", i),
			})
		}
		return page, nil
	}
}

func TestEngineLikedSongs(t *testing.T) {
	ctx := context.Background()
	tok := tu.TestToken()

	t.Run("Pages Through The Whole Library In Order", func(t *testing.T) {
		var mu sync.Mutex
		var offsets []int
		mock := &tu.MockStreaming{}
		backend := pagedLibrary(120)
		mock.SavedTracksFunc = func(limit, offset int) (*services.SavedTracksPage, error) {
			mu.Lock()
			offsets = append(offsets, offset)
			mu.Unlock()
			return backend(limit, offset)
		}

		e := testEngine(mock, &tu.MockCompleter{})
		songs, err := e.LikedSongs(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(songs) != 120 {
			t.Errorf("expected 120 songs, got %d", len(songs))
		}
		want := []int{0, 50, 100}
		if len(offsets) != len(want) {
			t.Fatalf("expected offsets %v, got %v", want, offsets)
		}
		for i := range want {
			if offsets[i] != want[i] {
				t.Errorf("expected offsets %v, got %v", want, offsets)
				break
			}
		}
		if songs[0].Title != "song 0" || songs[119].Title != "song 119" {
			t.Errorf("expected pages concatenated in order, got %q .. %q", songs[0].Title, songs[119].Title)
		}
	})

	t.Run("Stops On An Empty Page", func(t *testing.T) {
		mock := &tu.MockStreaming{
			SavedTracksFunc: func(limit, offset int) (*services.SavedTracksPage, error) {
				// Total overreports; the backend has nothing past the first page.
				page := &services.SavedTracksPage{Total: 500}
				if offset == 0 {
					page.Items = []models.LikedSong{{Title: "only", ID: "id0"}}
				}
				return page, nil
			},
		}

		e := testEngine(mock, &tu.MockCompleter{})
		songs, err := e.LikedSongs(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(songs) != 1 {
			t.Errorf("expected 1 song, got %d", len(songs))
		}
		if mock.CallCount("SavedTracks") != 2 {
			t.Errorf("expected 2 page fetches, got %d", mock.CallCount("SavedTracks"))
		}
	})

	t.Run("Propagates Page Failures", func(t *testing.T) {
		boom := errors.New("boom")
		mock := &tu.MockStreaming{
			SavedTracksFunc: func(limit, offset int) (*services.SavedTracksPage, error) {
				return nil, boom
			},
		}

		e := testEngine(mock, &tu.MockCompleter{})
		if _, err := e.LikedSongs(ctx, tok); !errors.Is(err, boom) {
			t.Errorf("expected the page error, got %v", err)
		}
	})
}

// alwaysResolved answers every track search with a hit.
func alwaysResolved(mock *tu.MockStreaming) {
	mock.SearchTrackFunc = func(title, artist string) (*services.SearchResult, error) {
		return &services.SearchResult{
			Total:  1,
			Tracks: []services.Track{{URI: "spotify:track:" + title}},
		}, nil
	}
}

func suggestion(name string, songCount int) models.SuggestedPlaylist {
	s := models.SuggestedPlaylist{Name: name, Description: "about " + name}
	for i := range songCount {
		s.Songs = append(s.Songs, models.Song{Title: fmt.Sprintf("%s-%d", name, i), Artist: "artist"})
	}
	return s
}

func TestEngineCreatePlaylists(t *testing.T) {
	ctx := context.Background()
	tok := tu.TestToken()

	t.Run("Creates One Playlist Per Suggestion", func(t *testing.T) {
		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(10)}
		alwaysResolved(mock)

		completer := &tu.MockCompleter{
			FromLibraryFunc: func(songs []models.LikedSong) ([]models.SuggestedPlaylist, error) {
				if len(songs) != 10 {
					t.Errorf("expected the corpus, got %d songs", len(songs))
				}
				return []models.SuggestedPlaylist{
					suggestion("morning", 3),
					suggestion("evening", 2),
				}, nil
			},
		}

		e := testEngine(mock, completer)
		created, err := e.CreatePlaylists(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(created) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(created))
		}
		if created[0].Name != "morning" || created[0].TrackCount != 3 {
			t.Errorf("unexpected playlist %+v", created[0])
		}
		if !strings.Contains(created[0].EmbedHTML, "open.spotify.com/embed/playlist/") {
			t.Errorf("expected embed markup, got %q", created[0].EmbedHTML)
		}
		if mock.CallCount("CreatePlaylist") != 2 || mock.CallCount("AddTracks") != 2 {
			t.Errorf("expected 2 create + 2 add calls, got %d/%d",
				mock.CallCount("CreatePlaylist"), mock.CallCount("AddTracks"))
		}
	})

	t.Run("Skips Suggestions That Resolve To Nothing", func(t *testing.T) {
		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(5)}
		mock.SearchTrackFunc = func(title, artist string) (*services.SearchResult, error) {
			if strings.HasPrefix(title, "ghost") {
				return &services.SearchResult{}, nil
			}
			return &services.SearchResult{
				Total:  1,
				Tracks: []services.Track{{URI: "spotify:track:" + title}},
			}, nil
		}

		completer := &tu.MockCompleter{
			FromLibraryFunc: func([]models.LikedSong) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{
					suggestion("real", 2),
					suggestion("ghost", 2),
				}, nil
			},
		}

		e := testEngine(mock, completer)
		created, err := e.CreatePlaylists(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(created) != 1 || created[0].Name != "real" {
			t.Errorf("expected only the resolvable playlist, got %+v", created)
		}
		if mock.CallCount("CreatePlaylist") != 1 {
			t.Errorf("expected 1 create call, got %d", mock.CallCount("CreatePlaylist"))
		}
	})

	t.Run("Zero Created Playlists Is A Failure", func(t *testing.T) {
		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(5)}
		// Nothing resolves and no artist matches.

		completer := &tu.MockCompleter{
			FromLibraryFunc: func([]models.LikedSong) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{suggestion("ghost", 2)}, nil
			},
		}

		e := testEngine(mock, completer)
		if _, err := e.CreatePlaylists(ctx, tok); !errors.Is(err, shared.ErrNoPlaylists) {
			t.Errorf("expected ErrNoPlaylists, got %v", err)
		}
	})

	t.Run("Truncates Long Names And Descriptions", func(t *testing.T) {
		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(5)}
		alwaysResolved(mock)

		var gotName, gotDescription string
		mock.CreatePlaylistFunc = func(name, description string) (*services.Playlist, error) {
			gotName, gotDescription = name, description
			return &services.Playlist{ID: "p1", Name: name}, nil
		}

		long := suggestion(strings.Repeat("n", 150), 1)
		long.Description = strings.Repeat("d", 400)
		completer := &tu.MockCompleter{
			FromLibraryFunc: func([]models.LikedSong) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{long}, nil
			},
		}

		e := testEngine(mock, completer)
		if _, err := e.CreatePlaylists(ctx, tok); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(gotName) != 100 {
			t.Errorf("expected name truncated to 100, got %d", len(gotName))
		}
		if len(gotDescription) != 300 {
			t.Errorf("expected description truncated to 300, got %d", len(gotDescription))
		}
	})
}

func TestEngineCreateCustom(t *testing.T) {
	ctx := context.Background()
	tok := tu.TestToken()

	t.Run("Rejects A Blank Prompt Before Any Call", func(t *testing.T) {
		mock := &tu.MockStreaming{}
		completer := &tu.MockCompleter{}
		e := testEngine(mock, completer)

		for _, prompt := range []string{"", "   ", "\n\t"} {
			if _, err := e.CreateCustom(ctx, tok, prompt); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("prompt %q: expected ErrInvalidInput, got %v", prompt, err)
			}
		}
		if completer.CallCount() != 0 {
			t.Errorf("expected no completion calls, got %d", completer.CallCount())
		}
		if len(mock.Calls()) != 0 {
			t.Errorf("expected no platform calls, got %v", mock.Calls())
		}
	})

	t.Run("Creates A Playlist From The Prompt", func(t *testing.T) {
		mock := &tu.MockStreaming{}
		alwaysResolved(mock)

		completer := &tu.MockCompleter{
			FromPromptFunc: func(prompt string) ([]models.SuggestedPlaylist, error) {
				if prompt != "rainy day jazz" {
					t.Errorf("unexpected prompt %q", prompt)
				}
				return []models.SuggestedPlaylist{suggestion("Rainy Day", 4)}, nil
			},
		}

		e := testEngine(mock, completer)
		created, err := e.CreateCustom(ctx, tok, "rainy day jazz")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if created.Name != "Rainy Day" || created.TrackCount != 4 {
			t.Errorf("unexpected playlist %+v", created)
		}
		if mock.CallCount("SavedTracks") != 0 {
			t.Error("expected the custom flow to skip the library")
		}
	})

	t.Run("No Suggestions Is A Bad Suggestion", func(t *testing.T) {
		e := testEngine(&tu.MockStreaming{}, &tu.MockCompleter{})

		if _, err := e.CreateCustom(ctx, tok, "anything"); !errors.Is(err, shared.ErrBadSuggestion) {
			t.Errorf("expected ErrBadSuggestion, got %v", err)
		}
	})

	t.Run("Nothing Resolvable Is Track Not Found", func(t *testing.T) {
		mock := &tu.MockStreaming{}
		completer := &tu.MockCompleter{
			FromPromptFunc: func(string) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{suggestion("ghost", 3)}, nil
			},
		}

		e := testEngine(mock, completer)
		if _, err := e.CreateCustom(ctx, tok, "imaginary songs"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})
}

func TestEngineSnapshots(t *testing.T) {
	ctx := context.Background()
	tok := tu.TestToken()

	t.Run("Dev Mode Reuses The Snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")
		snapshot := []models.SuggestedPlaylist{suggestion("cached", 2)}
		data, _ := json.Marshal(snapshot)
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}

		mock := &tu.MockStreaming{}
		completer := &tu.MockCompleter{}
		e := NewEngine(EngineOpts{
			Service:      mock,
			Completer:    completer,
			Queue:        fastQueue(),
			Logger:       quietLogger(),
			DevMode:      true,
			SnapshotPath: path,
		})

		got, err := e.GeneratePlaylists(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 1 || got[0].Name != "cached" {
			t.Errorf("expected the snapshot, got %+v", got)
		}
		if completer.CallCount() != 0 || mock.CallCount("SavedTracks") != 0 {
			t.Error("expected the snapshot to short-circuit all calls")
		}
	})

	t.Run("Dev Mode Writes The Snapshot Back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlists.json")

		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(3)}
		completer := &tu.MockCompleter{
			FromLibraryFunc: func([]models.LikedSong) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{suggestion("fresh", 2)}, nil
			},
		}
		e := NewEngine(EngineOpts{
			Service:      mock,
			Completer:    completer,
			Queue:        fastQueue(),
			Logger:       quietLogger(),
			DevMode:      true,
			SnapshotPath: path,
		})

		if _, err := e.GeneratePlaylists(ctx, tok); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected a snapshot file, got %v", err)
		}
		var persisted []models.SuggestedPlaylist
		if err := json.Unmarshal(data, &persisted); err != nil {
			t.Fatalf("expected valid snapshot JSON, got %v", err)
		}
		if len(persisted) != 1 || persisted[0].Name != "fresh" {
			t.Errorf("unexpected snapshot contents %+v", persisted)
		}
	})

	t.Run("Without Dev Mode The Completion Always Runs", func(t *testing.T) {
		mock := &tu.MockStreaming{SavedTracksFunc: pagedLibrary(3)}
		completer := &tu.MockCompleter{
			FromLibraryFunc: func([]models.LikedSong) ([]models.SuggestedPlaylist, error) {
				return []models.SuggestedPlaylist{suggestion("live", 1)}, nil
			},
		}

		e := testEngine(mock, completer)
		if _, err := e.GeneratePlaylists(ctx, tok); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if completer.CallCount() != 1 {
			t.Errorf("expected 1 completion call, got %d", completer.CallCount())
		}
	})
}
