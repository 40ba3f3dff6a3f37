package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/shared"
)

func openAITestService(t *testing.T, handler http.Handler) (*OpenAIService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	svc, err := NewOpenAIService(shared.OpenAIConfig{
		APIKey:  "key",
		Model:   "gpt-test",
		BaseURL: server.URL,
	}, server.Client())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return svc, server
}

func completionHandler(t *testing.T, content string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("expected bearer header, got %s", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-test" {
			t.Errorf("expected model gpt-test, got %s", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})
}

func TestNewOpenAIService(t *testing.T) {
	t.Run("Requires An API Key", func(t *testing.T) {
		_, err := NewOpenAIService(shared.OpenAIConfig{Model: "gpt-test"}, nil)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Requires A Model", func(t *testing.T) {
		_, err := NewOpenAIService(shared.OpenAIConfig{APIKey: "key"}, nil)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Defaults The Base URL", func(t *testing.T) {
		svc, err := NewOpenAIService(shared.OpenAIConfig{APIKey: "key", Model: "gpt-test"}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if svc.baseURL != defaultOpenAIBaseURL {
			t.Errorf("expected default base URL, got %s", svc.baseURL)
		}
	})
}

func TestOpenAIService(t *testing.T) {
	ctx := context.Background()

	t.Run("SuggestFromPrompt Parses The Reply", func(t *testing.T) {
		reply := `{"name": "Late Night", "description": "wind down", "songs": [{"title": "Song", "artist": "Artist"}]}`
		svc, server := openAITestService(t, completionHandler(t, reply))
		defer server.Close()

		playlists, err := svc.SuggestFromPrompt(ctx, "songs for a late night drive")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 1 || playlists[0].Name != "Late Night" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
	})

	t.Run("SuggestFromLibrary Includes The Corpus", func(t *testing.T) {
		var prompt string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Messages) == 1 {
				prompt = req.Messages[0].Content
			}
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "[]"}},
				},
			})
		}))
		defer server.Close()

		svc, err := NewOpenAIService(shared.OpenAIConfig{APIKey: "key", Model: "gpt-test", BaseURL: server.URL}, server.Client())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		_, err = svc.SuggestFromLibrary(ctx, []models.LikedSong{
			{Title: "Karma Police", Artist: "Radiohead"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(prompt, "Karma Police") || !strings.Contains(prompt, "Radiohead") {
			t.Errorf("expected the corpus in the prompt, got %q", prompt)
		}
	})

	t.Run("Zero Choices Is A Bad Suggestion", func(t *testing.T) {
		svc, server := openAITestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices": []}`)
		}))
		defer server.Close()

		if _, err := svc.SuggestFromPrompt(ctx, "anything"); !errors.Is(err, shared.ErrBadSuggestion) {
			t.Errorf("expected ErrBadSuggestion, got %v", err)
		}
	})

	t.Run("Rate Limit Carries The Hint", func(t *testing.T) {
		svc, server := openAITestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"message": "Rate limit reached"}}`)
		}))
		defer server.Close()

		_, err := svc.SuggestFromPrompt(ctx, "anything")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %v", err)
		}
		if !apiErr.Retryable() {
			t.Error("expected a 429 to be retryable")
		}
		if apiErr.Reason != "Rate limit reached" {
			t.Errorf("expected the platform reason, got %q", apiErr.Reason)
		}
	})
}

func TestParseSuggestions(t *testing.T) {
	t.Run("Array Of Playlists", func(t *testing.T) {
		playlists, err := ParseSuggestions(`[
			{"name": "A", "description": "first", "songs": [{"title": "t", "artist": "a"}]},
			{"name": "B", "description": "second", "songs": []}
		]`)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 2 || playlists[0].Name != "A" || playlists[1].Name != "B" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
		if len(playlists[0].Songs) != 1 || playlists[0].Songs[0].Title != "t" {
			t.Errorf("unexpected songs %+v", playlists[0].Songs)
		}
	})

	t.Run("Single Playlist Object", func(t *testing.T) {
		playlists, err := ParseSuggestions(`{"name": "Solo", "description": "one", "songs": []}`)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 1 || playlists[0].Name != "Solo" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
	})

	t.Run("Strips Code Fences", func(t *testing.T) {
		cases := map[string]string{
			"json fence":  "```json\n[{\"name\": \"Fenced\", \"description\": \"\", \"songs\": []}]\n```",
			"plain fence": "```\n[{\"name\": \"Fenced\", \"description\": \"\", \"songs\": []}]\n```",
		}

		for name, text := range cases {
			t.Run(name, func(t *testing.T) {
				playlists, err := ParseSuggestions(text)
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if len(playlists) != 1 || playlists[0].Name != "Fenced" {
					t.Errorf("unexpected playlists %+v", playlists)
				}
			})
		}
	})

	t.Run("Prose Is A Bad Suggestion", func(t *testing.T) {
		_, err := ParseSuggestions("Sure! Here are some playlists you might like:")
		if !errors.Is(err, shared.ErrBadSuggestion) {
			t.Errorf("expected ErrBadSuggestion, got %v", err)
		}
	})
}
