// OpenAI-compatible completion implementation of [Completer]
//
// Talks to any /chat/completions endpoint. The model's reply is expected to
// be a bare JSON document (array of playlists or a single playlist) with no
// surrounding prose; a reply that fails to parse propagates as an error with
// no automatic repair.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/shared"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

const libraryPrompt = `You are a music curator. Based on the listener's saved songs below, suggest 4 to 6 themed playlists.
Respond with ONLY a JSON array, no prose and no code fences. Each element must have the shape
{"name": string, "description": string, "songs": [{"title": string, "artist": string}]}.
Each playlist should contain 10 to 20 songs. Saved songs:

%s`

const customPrompt = `You are a music curator. Create one playlist for the request below.
Respond with ONLY a JSON object, no prose and no code fences, with the shape
{"name": string, "description": string, "songs": [{"title": string, "artist": string}]}.
The playlist should contain 10 to 20 songs. Request:

%s`

// OpenAIService implements [Completer] against an OpenAI-compatible API.
type OpenAIService struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIService creates a completion client from the given credentials.
// A nil http.Client falls back to [http.DefaultClient].
func NewOpenAIService(cfg shared.OpenAIConfig, client *http.Client) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key is required", shared.ErrMissingCredentials)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai model is required", shared.ErrInvalidConfig)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &OpenAIService{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: client,
	}, nil
}

// SuggestFromLibrary asks for playlist suggestions derived from the user's
// saved tracks.
func (o *OpenAIService) SuggestFromLibrary(ctx context.Context, songs []models.LikedSong) ([]models.SuggestedPlaylist, error) {
	var corpus strings.Builder
	for _, song := range songs {
		fmt.Fprintf(&corpus, "%s — %s\n", song.Title, song.Artist)
	}

	text, err := o.complete(ctx, fmt.Sprintf(libraryPrompt, corpus.String()))
	if err != nil {
		return nil, err
	}

	return ParseSuggestions(text)
}

// SuggestFromPrompt asks for playlist suggestions for a free-text prompt.
func (o *OpenAIService) SuggestFromPrompt(ctx context.Context, prompt string) ([]models.SuggestedPlaylist, error) {
	text, err := o.complete(ctx, fmt.Sprintf(customPrompt, prompt))
	if err != nil {
		return nil, err
	}

	return ParseSuggestions(text)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete performs a single-turn chat completion and returns the reply text.
func (o *OpenAIService) complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Service: "openai", Status: resp.StatusCode}
		var errBody openAIErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Reason = errBody.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if header := resp.Header.Get("Retry-After"); header != "" {
				if seconds, err := strconv.Atoi(header); err == nil {
					apiErr.Hint = time.Duration(seconds) * time.Second
					apiErr.HasHint = true
				}
			}
		}
		return "", apiErr
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", shared.ErrBadSuggestion)
	}

	return completion.Choices[0].Message.Content, nil
}

// ParseSuggestions decodes the model's reply into playlist suggestions.
//
// Accepts either a JSON array of playlists or a single playlist object.
// Models occasionally wrap the document in code fences despite instructions,
// so fences are stripped before decoding; any other deviation is an error.
func ParseSuggestions(text string) ([]models.SuggestedPlaylist, error) {
	doc := strings.TrimSpace(text)
	if strings.HasPrefix(doc, "```") {
		doc = strings.TrimPrefix(doc, "```json")
		doc = strings.TrimPrefix(doc, "```")
		doc = strings.TrimSuffix(strings.TrimSpace(doc), "```")
		doc = strings.TrimSpace(doc)
	}

	var playlists []models.SuggestedPlaylist
	if err := json.Unmarshal([]byte(doc), &playlists); err == nil {
		return playlists, nil
	}

	var single models.SuggestedPlaylist
	if err := json.Unmarshal([]byte(doc), &single); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBadSuggestion, err)
	}

	return []models.SuggestedPlaylist{single}, nil
}
