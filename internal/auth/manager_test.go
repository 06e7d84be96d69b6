package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secho/egnyte-client-linux/internal/config"
)

// memoryStorage is an in-process Storage backend with injectable failures
type memoryStorage struct {
	name      string
	tokens    *TokenSet
	saveErr   error
	loadErr   error
	loadCalls int
}

func (s *memoryStorage) Save(tokens TokenSet) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := tokens
	s.tokens = &copied
	return nil
}

func (s *memoryStorage) Load() (*TokenSet, error) {
	s.loadCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.tokens == nil {
		return nil, nil
	}
	copied := *s.tokens
	return &copied, nil
}

func (s *memoryStorage) Delete() error {
	s.tokens = nil
	return nil
}

func (s *memoryStorage) Name() string { return s.name }

func newTestManager(t *testing.T, backends ...Storage) (*Manager, *config.Config) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Set("domain", "acme"))
	require.NoError(t, cfg.Set("clientId", "client-1"))

	m := NewManager(cfg, nil)
	m.backends = backends
	return m, cfg
}

func TestAuthorizationURL(t *testing.T) {
	m, _ := newTestManager(t, &memoryStorage{name: "primary"})

	rawURL, err := m.AuthorizationURL()
	require.NoError(t, err)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "acme.egnyte.com", u.Host)
	assert.Equal(t, "/puboauth/authorize", u.Path)
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
}

func TestAuthorizationURLRequiresConfig(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	m := NewManager(cfg, nil)
	_, err = m.AuthorizationURL()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStoreFallsBackToNextBackend(t *testing.T) {
	broken := &memoryStorage{name: "keyring", saveErr: errors.New("no keyring daemon")}
	file := &memoryStorage{name: "file"}
	m, _ := newTestManager(t, broken, file)

	require.NoError(t, m.store(TokenSet{AccessToken: "tok"}))
	assert.Nil(t, broken.tokens)
	require.NotNil(t, file.tokens)
	assert.Equal(t, "tok", file.tokens.AccessToken)
	assert.Equal(t, "file", m.StorageName())
}

func TestStoreFailsWhenNoBackendAvailable(t *testing.T) {
	m, _ := newTestManager(t,
		&memoryStorage{name: "a", saveErr: errors.New("down")},
		&memoryStorage{name: "b", saveErr: errors.New("also down")},
	)
	assert.Error(t, m.store(TokenSet{AccessToken: "tok"}))
}

func TestLoadCachesTokens(t *testing.T) {
	backend := &memoryStorage{name: "primary", tokens: &TokenSet{AccessToken: "tok"}}
	m, _ := newTestManager(t, backend)

	for i := 0; i < 3; i++ {
		token, err := m.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", token)
	}
	assert.Equal(t, 1, backend.loadCalls)
}

func TestLoadSkipsFailingBackend(t *testing.T) {
	broken := &memoryStorage{name: "keyring", loadErr: errors.New("no keyring daemon")}
	file := &memoryStorage{name: "file", tokens: &TokenSet{AccessToken: "tok"}}
	m, _ := newTestManager(t, broken, file)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestIsAuthenticated(t *testing.T) {
	backend := &memoryStorage{name: "primary"}
	m, _ := newTestManager(t, backend)
	assert.False(t, m.IsAuthenticated())

	require.NoError(t, m.store(TokenSet{AccessToken: "tok"}))
	assert.True(t, m.IsAuthenticated())
}

func TestLogoutClearsEveryBackend(t *testing.T) {
	a := &memoryStorage{name: "a", tokens: &TokenSet{AccessToken: "tok"}}
	b := &memoryStorage{name: "b", tokens: &TokenSet{AccessToken: "tok"}}
	m, _ := newTestManager(t, a, b)

	require.NoError(t, m.Logout())
	assert.Nil(t, a.tokens)
	assert.Nil(t, b.tokens)
	assert.False(t, m.IsAuthenticated())
}

func TestAccessTokenWithoutTokens(t *testing.T) {
	m, _ := newTestManager(t, &memoryStorage{name: "primary"})
	_, err := m.AccessToken(context.Background())
	assert.Error(t, err)
}

func TestWaitForCallbackDeliversCode(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	m, cfg := newTestManager(t, &memoryStorage{name: "primary"})
	require.NoError(t, cfg.Set("redirectUri", fmt.Sprintf("https://localhost:%d/callback", port)))

	type result struct {
		code string
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		code, err := m.WaitForCallback(context.Background())
		resultCh <- result{code, err}
	}()

	// Poll until the callback server is listening, then deliver the code
	// the way the browser redirect would.
	callbackURL := fmt.Sprintf("http://127.0.0.1:%d/callback?code=auth-code-1", port)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(callbackURL)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("callback server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, "auth-code-1", res.code)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForCallback did not return")
	}
}

func TestWaitForCallbackHonorsContext(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	m, cfg := newTestManager(t, &memoryStorage{name: "primary"})
	require.NoError(t, cfg.Set("redirectUri", fmt.Sprintf("https://localhost:%d/callback", port)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = m.WaitForCallback(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
