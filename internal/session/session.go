// package session manages the platform token lifecycle.
//
// A Token is an immutable record; refreshing produces a new record rather
// than mutating client state. Records persist between process runs as a JSON
// file under the data directory, so a restart does not force a re-login.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/shared"
	"golang.org/x/oauth2"
)

// RefreshMargin is the safety window before expiry inside which Ensure
// performs a refresh exchange. Outside the window the stored token is
// returned untouched.
const RefreshMargin = 5 * time.Minute

// Token is an access/refresh token record for the streaming platform.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Expiring reports whether the record is within RefreshMargin of its expiry.
func (t *Token) Expiring(now time.Time) bool {
	return !now.Add(RefreshMargin).Before(t.Expiry)
}

// Store persists token records between process runs.
type Store interface {
	Load() (*Token, error)
	Save(*Token) error
}

// FileStore persists the token record as a JSON file on local disk.
//
// Not a durable store of record; losing the file just forces a re-login.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted token record.
func (s *FileStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: no token record at %s", shared.ErrNotAuthenticated, s.path)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: corrupt token record: %v", shared.ErrNotAuthenticated, err)
	}

	return &token, nil
}

// Save writes the token record, creating the data directory if needed.
func (s *FileStore) Save(token *Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token record: %w", err)
	}

	return nil
}

// Manager ensures a valid access token before any API-dependent operation.
type Manager struct {
	config *oauth2.Config
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by the given OAuth2 config and store.
func NewManager(config *oauth2.Config, store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		config: config,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// AuthURL returns the provider authorization URL for the given state token.
func (m *Manager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token record and persists it.
func (m *Manager) Exchange(ctx context.Context, code string) (*Token, error) {
	ot, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	token := &Token{
		AccessToken:  ot.AccessToken,
		RefreshToken: ot.RefreshToken,
		Expiry:       ot.Expiry,
	}

	if err := m.store.Save(token); err != nil {
		return nil, err
	}

	m.logger.Info("token exchanged", "expiry", token.Expiry)
	return token, nil
}

// Ensure returns a token valid for at least RefreshMargin, refreshing and
// persisting a new record only when the stored one is within the margin.
func (m *Manager) Ensure(ctx context.Context) (*Token, error) {
	token, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	if !token.Expiring(m.now()) {
		return token, nil
	}

	return m.refresh(ctx, token)
}

// refresh performs the refresh grant and returns a new record. The original
// refresh token is retained when the provider omits one from the response.
func (m *Manager) refresh(ctx context.Context, token *Token) (*Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrNoRefreshToken)
	}

	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	next := &Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Expiry:       fresh.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = token.RefreshToken
	}

	if err := m.store.Save(next); err != nil {
		return nil, err
	}

	m.logger.Info("token refreshed", "expiry", next.Expiry)
	return next, nil
}
