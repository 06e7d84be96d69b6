package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/logging"
)

// Scopes requested during login
const oauthScopes = "Egnyte.filesystem Egnyte.user"

// callbackTimeout bounds how long the local callback server waits for
// the browser redirect
const callbackTimeout = 5 * time.Minute

// ErrNotConfigured is returned when domain or client credentials are missing
var ErrNotConfigured = errors.New("auth: domain and client credentials not configured, run 'egnyte config set' first")

// Manager owns the OAuth2 flow and token lifecycle for one domain.
// Tokens are stored in the system keyring, falling back to a file
// when no keyring is available.
type Manager struct {
	cfg      *config.Config
	logger   logging.Logger
	backends []Storage

	mu     sync.Mutex
	tokens *TokenSet
}

// NewManager creates an auth manager using keyring-then-file storage
func NewManager(cfg *config.Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		backends: []Storage{
			NewKeyringStorage(),
			NewFileStorage(cfg.Dir()),
		},
	}
}

func (m *Manager) oauthConfig() (*oauth2.Config, error) {
	domain := m.cfg.Domain()
	clientID := m.cfg.ClientID()
	if domain == "" || clientID == "" {
		return nil, ErrNotConfigured
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: m.cfg.ClientSecret(),
		RedirectURL:  m.cfg.RedirectURI(),
		Scopes:       []string{oauthScopes},
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("https://%s.egnyte.com/puboauth/authorize", domain),
			TokenURL: fmt.Sprintf("https://%s.egnyte.com/puboauth/token", domain),
		},
	}, nil
}

// AuthorizationURL builds the browser URL starting the login flow
func (m *Manager) AuthorizationURL() (string, error) {
	conf, err := m.oauthConfig()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL("", oauth2.AccessTypeOffline), nil
}

// Exchange trades an authorization code for tokens and persists them
func (m *Manager) Exchange(ctx context.Context, code string) error {
	conf, err := m.oauthConfig()
	if err != nil {
		return err
	}
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	return m.store(TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
}

// WaitForCallback runs a local HTTP server on the redirect URI's port
// and returns the authorization code delivered by the browser redirect
func (m *Manager) WaitForCallback(ctx context.Context) (string, error) {
	redirect, err := url.Parse(m.cfg.RedirectURI())
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	port := redirect.Port()
	if port == "" {
		port = "8080"
	}

	listener, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		return "", fmt.Errorf("cannot listen for OAuth callback: %w", err)
	}

	codeCh := make(chan string, 1)
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, "Error: no authorization code received")
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
				"<p>You can close this window and return to the application.</p></body></html>")
			select {
			case codeCh <- code:
			default:
			}
		}),
	}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	select {
	case code := <-codeCh:
		return code, nil
	case <-time.After(callbackTimeout):
		return "", errors.New("timed out waiting for OAuth callback")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// IsAuthenticated reports whether a stored access token exists
func (m *Manager) IsAuthenticated() bool {
	tokens, err := m.load()
	return err == nil && tokens != nil && tokens.AccessToken != ""
}

// AccessToken returns the current access token, implementing the API
// client's TokenProvider
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tokens, err := m.load()
	if err != nil {
		return "", err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return "", errors.New("auth: no stored tokens")
	}
	return tokens.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	tokens, err := m.load()
	if err != nil {
		return "", err
	}
	if tokens == nil || tokens.RefreshToken == "" {
		return "", errors.New("auth: no refresh token stored, login again")
	}

	conf, err := m.oauthConfig()
	if err != nil {
		return "", err
	}
	refreshed, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tokens.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	next := TokenSet{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		Expiry:       refreshed.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if err := m.store(next); err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

// Logout discards stored tokens from every backend
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.tokens = nil
	m.mu.Unlock()

	var firstErr error
	for _, backend := range m.backends {
		if err := backend.Delete(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StorageName reports which backend currently holds tokens
func (m *Manager) StorageName() string {
	for _, backend := range m.backends {
		if tokens, err := backend.Load(); err == nil && tokens != nil {
			return backend.Name()
		}
	}
	return "none"
}

func (m *Manager) store(tokens TokenSet) error {
	m.mu.Lock()
	m.tokens = &tokens
	m.mu.Unlock()

	var lastErr error
	for _, backend := range m.backends {
		if err := backend.Save(tokens); err != nil {
			m.logger.Debug("Token storage backend unavailable",
				logging.F("backend", backend.Name()), logging.F("error", err.Error()))
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("no token storage backend available: %w", lastErr)
}

func (m *Manager) load() (*TokenSet, error) {
	m.mu.Lock()
	if m.tokens != nil {
		cached := *m.tokens
		m.mu.Unlock()
		return &cached, nil
	}
	m.mu.Unlock()

	var lastErr error
	for _, backend := range m.backends {
		tokens, err := backend.Load()
		if err != nil {
			lastErr = err
			continue
		}
		if tokens != nil {
			m.mu.Lock()
			m.tokens = tokens
			m.mu.Unlock()
			return tokens, nil
		}
	}
	return nil, lastErr
}
