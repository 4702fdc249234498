package ssosdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-process identity provider serving discovery and
// a scriptable token endpoint.
type fakeProvider struct {
	srv        *httptest.Server
	tokenCalls atomic.Int64

	// tokenDelay stalls the token endpoint, for in-flight race tests.
	tokenDelay time.Duration
	// tokenFail makes the token endpoint return invalid_grant.
	tokenFail atomic.Bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{}
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 p.srv.URL,
			"authorization_endpoint": p.srv.URL + "/authorize",
			"token_endpoint":         p.srv.URL + "/token",
			"end_session_endpoint":   p.srv.URL + "/logout",
			"jwks_uri":               p.srv.URL + "/jwks",
		})
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		if p.tokenDelay > 0 {
			time.Sleep(p.tokenDelay)
		}
		if p.tokenFail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "provider-access-token",
			RefreshToken: "provider-refresh-token",
			TokenType:    "Bearer",
			ExpiresIn:    300,
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func newTestSession(t *testing.T, p *fakeProvider, storages ...Storage) *Session {
	t.Helper()

	s, err := New(Config{
		IssuerURL:   p.srv.URL,
		ClientID:    "todo-web",
		RedirectURI: "https://app.example.com/",
		APIBaseURL:  "https://api.example.com",
		Storages:    storages,
	})
	require.NoError(t, err)
	return s
}

func TestInitializeNoMarkers(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	cleaned, state, err := s.Initialize(context.Background(),
		"https://app.example.com/list?filter=open")
	require.NoError(t, err)
	require.Equal(t, StateUnauthenticated, state)
	require.Equal(t, "https://app.example.com/list?filter=open", cleaned)

	// No stored refresh token, so the provider was never contacted.
	require.Zero(t, p.tokenCalls.Load())
}

func TestInitializePreservesHashRoute(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	cleaned, state, err := s.Initialize(context.Background(),
		"https://app.example.com/#/todos/open")
	require.NoError(t, err)
	require.Equal(t, StateUnauthenticated, state)
	require.Equal(t, "https://app.example.com/#/todos/open", cleaned)
}

func TestInitializeImplicitCallback(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	cleaned, state, err := s.Initialize(context.Background(),
		"https://app.example.com/#access_token=AAA&id_token=BBB&token_type=bearer&expires_in=300")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, state)

	tok, err := s.AccessToken()
	require.NoError(t, err)
	require.Equal(t, "AAA", tok)

	// Tokens must not survive in the address bar.
	require.NotContains(t, cleaned, "AAA")
	require.NotContains(t, cleaned, "BBB")
	require.NotContains(t, cleaned, "access_token")
}

func TestInitializeCodeCallback(t *testing.T) {
	p := newFakeProvider(t)
	store := NewMemoryStorage()
	s := newTestSession(t, p, store)

	require.NoError(t, store.Set(storageKeyLoginState, "st1"))
	require.NoError(t, store.Set(storageKeyPKCEVerifier, "verifier"))

	cleaned, state, err := s.Initialize(context.Background(),
		"https://app.example.com/?code=authcode&state=st1")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, state)
	require.NotContains(t, cleaned, "code=")
	require.Equal(t, int64(1), p.tokenCalls.Load())

	// One-shot login material is consumed.
	v, _ := store.Get(storageKeyPKCEVerifier)
	require.Empty(t, v)
}

func TestInitializeCodeCallbackStateMismatch(t *testing.T) {
	p := newFakeProvider(t)
	store := NewMemoryStorage()
	s := newTestSession(t, p, store)

	require.NoError(t, store.Set(storageKeyLoginState, "expected"))

	_, state, err := s.Initialize(context.Background(),
		"https://app.example.com/?code=authcode&state=forged")
	require.ErrorIs(t, err, ErrStateMismatch)
	require.Equal(t, StateUnauthenticated, state)
	require.Zero(t, p.tokenCalls.Load(), "code must not be exchanged on state mismatch")
}

func TestInitializeProviderError(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	cleaned, state, err := s.Initialize(context.Background(),
		"https://app.example.com/?error=access_denied&error_description=user+cancelled")
	require.ErrorIs(t, err, ErrProvider)
	require.Equal(t, StateUnauthenticated, state)
	require.NotContains(t, cleaned, "error")
}

func TestInitializeSilentCheck(t *testing.T) {
	t.Run("resumes from stored refresh token", func(t *testing.T) {
		p := newFakeProvider(t)
		store := NewMemoryStorage()
		s := newTestSession(t, p, store)

		require.NoError(t, store.Set(storageKeyRefreshToken, "stored-rt"))

		_, state, err := s.Initialize(context.Background(), "https://app.example.com/")
		require.NoError(t, err)
		require.Equal(t, StateAuthenticated, state)
		require.Equal(t, int64(1), p.tokenCalls.Load())
	})

	t.Run("rejected refresh token leaves session unauthenticated", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenFail.Store(true)
		store := NewMemoryStorage()
		s := newTestSession(t, p, store)

		require.NoError(t, store.Set(storageKeyRefreshToken, "stale-rt"))

		_, state, err := s.Initialize(context.Background(), "https://app.example.com/")
		require.NoError(t, err, "a failed silent check is not an error")
		require.Equal(t, StateUnauthenticated, state)

		// The dead token is dropped so the next load doesn't retry it.
		v, _ := store.Get(storageKeyRefreshToken)
		require.Empty(t, v)
	})

	t.Run("slow provider is bounded by the timeout", func(t *testing.T) {
		p := newFakeProvider(t)
		p.tokenDelay = 2 * time.Second
		store := NewMemoryStorage()
		require.NoError(t, store.Set(storageKeyRefreshToken, "stored-rt"))

		s, err := New(Config{
			IssuerURL:          p.srv.URL,
			ClientID:           "todo-web",
			RedirectURI:        "https://app.example.com/",
			APIBaseURL:         "https://api.example.com",
			Storages:           []Storage{store},
			SilentCheckTimeout: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		start := time.Now()
		_, state, err := s.Initialize(context.Background(), "https://app.example.com/")
		require.NoError(t, err)
		require.Equal(t, StateUnauthenticated, state)
		require.Less(t, time.Since(start), time.Second)
	})
}

func TestInitializeIsIdempotent(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	_, first, err := s.Initialize(context.Background(),
		"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, first)

	// Second call is a no-op even if the URL still carries markers.
	url2, second, err := s.Initialize(context.Background(),
		"https://app.example.com/#access_token=ZZZ&token_type=bearer")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, second)
	require.Equal(t, "https://app.example.com/#access_token=ZZZ&token_type=bearer", url2)

	tok, err := s.AccessToken()
	require.NoError(t, err)
	require.Equal(t, "AAA", tok, "second initialize must not adopt new tokens")
}

func TestLoginURL(t *testing.T) {
	p := newFakeProvider(t)
	store := NewMemoryStorage()
	s := newTestSession(t, p, store)

	loginURL, err := s.LoginURL(context.Background())
	require.NoError(t, err)
	require.Contains(t, loginURL, p.srv.URL+"/authorize?")
	require.Contains(t, loginURL, "response_type=code")
	require.Contains(t, loginURL, "code_challenge_method=S256")
	require.Contains(t, loginURL, "client_id=todo-web")

	// Verifier and state are persisted for the callback leg.
	v, _ := store.Get(storageKeyPKCEVerifier)
	require.NotEmpty(t, v)
	st, _ := store.Get(storageKeyLoginState)
	require.NotEmpty(t, st)
	require.Contains(t, loginURL, "state="+st)
}

// failingStorage errors on every operation.
type failingStorage struct{}

func (failingStorage) Get(string) (string, error) { return "", errors.New("backend gone") }
func (failingStorage) Set(string, string) error   { return errors.New("backend gone") }
func (failingStorage) Delete(string) error        { return errors.New("backend gone") }

func TestLogout(t *testing.T) {
	t.Run("clears state and returns end-session url", func(t *testing.T) {
		p := newFakeProvider(t)
		store := NewMemoryStorage()
		s := newTestSession(t, p, store)

		_, state, err := s.Initialize(context.Background(),
			"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300")
		require.NoError(t, err)
		require.Equal(t, StateAuthenticated, state)

		endURL, err := s.Logout(context.Background())
		require.NoError(t, err)
		require.Contains(t, endURL, p.srv.URL+"/logout")

		require.Equal(t, StateUnauthenticated, s.State())
		_, err = s.AccessToken()
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("is idempotent", func(t *testing.T) {
		p := newFakeProvider(t)
		s := newTestSession(t, p)

		_, _, err := s.Initialize(context.Background(),
			"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300")
		require.NoError(t, err)

		first, err := s.Logout(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, first)

		second, err := s.Logout(context.Background())
		require.NoError(t, err)
		require.Empty(t, second, "second logout is a no-op")
		require.Equal(t, StateUnauthenticated, s.State())
	})

	t.Run("one failing storage does not stop the others", func(t *testing.T) {
		p := newFakeProvider(t)
		good := NewMemoryStorage()
		s := newTestSession(t, p, failingStorage{}, good)

		require.NoError(t, good.Set(storageKeyRefreshToken, "rt"))
		require.NoError(t, good.Set(storageKeyIDToken, "idt"))

		_, _, err := s.Initialize(context.Background(),
			"https://app.example.com/#access_token=AAA&token_type=bearer&expires_in=300")
		require.NoError(t, err)

		_, err = s.Logout(context.Background())
		require.NoError(t, err)

		for _, key := range sessionStorageKeys {
			v, gerr := good.Get(key)
			require.NoError(t, gerr)
			require.Empty(t, v, "key %s must be cleared", key)
		}
	})
}

func TestRefreshAfterLogoutIsDiscarded(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenDelay = 150 * time.Millisecond
	store := NewMemoryStorage()
	s := newTestSession(t, p, store)

	// Resume a session so a refresh token is held.
	require.NoError(t, store.Set(storageKeyRefreshToken, "stored-rt"))
	_, state, err := s.Initialize(context.Background(), "https://app.example.com/")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, state)

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()

	// Let the refresh reach the provider, then log out underneath it.
	time.Sleep(50 * time.Millisecond)
	_, err = s.Logout(context.Background())
	require.NoError(t, err)

	require.ErrorIs(t, <-done, ErrNotAuthenticated)
	require.Equal(t, StateUnauthenticated, s.State())
	_, err = s.AccessToken()
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefreshRequiresSession(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p)

	require.ErrorIs(t, s.Refresh(context.Background()), ErrNotAuthenticated)
}
