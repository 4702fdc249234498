package ssosdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/quokkaworks/todo-sso/pkg/slogx"
)

const (
	// DefaultRefreshInterval is how often the background loop checks
	// whether the access token needs refreshing.
	DefaultRefreshInterval = 10 * time.Second

	// DefaultRefreshMargin is how long before expiry a refresh is attempted.
	DefaultRefreshMargin = 30 * time.Second

	// DefaultSilentCheckTimeout bounds the silent session check at
	// initialization. A slow provider must not block startup.
	DefaultSilentCheckTimeout = 5 * time.Second
)

// Config configures a Session. IssuerURL, ClientID, RedirectURI and
// APIBaseURL are required.
type Config struct {
	IssuerURL   string
	ClientID    string
	RedirectURI string
	APIBaseURL  string

	// Scopes requested at login. Defaults to ["openid", "profile"].
	Scopes []string

	// Storages holds the areas session material is persisted to and
	// cleared from. Defaults to a single MemoryStorage.
	Storages []Storage

	// HTTPClient is used for both provider and API requests. Defaults to
	// a client with a 10s timeout.
	HTTPClient *http.Client

	// Logger for session lifecycle events. Token values are never logged.
	// Defaults to a discarding logger.
	Logger *slog.Logger

	RefreshInterval    time.Duration
	RefreshMargin      time.Duration
	SilentCheckTimeout time.Duration
}

// Session is the client-side session state machine. All exported methods
// are safe for concurrent use.
type Session struct {
	cfg    Config
	client *Client
	log    *slog.Logger

	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
	idToken      string
	user         UserInfo
	expiresAt    time.Time

	// generation increments on logout. A refresh that started before a
	// logout carries the old generation and its result is discarded.
	generation uint64

	refreshCancel context.CancelFunc
}

// New builds a Session in the uninitialized state. No network traffic
// happens until Initialize.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.IssuerURL == "":
		return nil, errors.New("ssosdk: config missing IssuerURL")
	case cfg.ClientID == "":
		return nil, errors.New("ssosdk: config missing ClientID")
	case cfg.RedirectURI == "":
		return nil, errors.New("ssosdk: config missing RedirectURI")
	case cfg.APIBaseURL == "":
		return nil, errors.New("ssosdk: config missing APIBaseURL")
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile"}
	}
	if len(cfg.Storages) == 0 {
		cfg.Storages = []Storage{NewMemoryStorage()}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slogx.Discard()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.SilentCheckTimeout <= 0 {
		cfg.SilentCheckTimeout = DefaultSilentCheckTimeout
	}

	return &Session{
		cfg:    cfg,
		client: NewClient(cfg.IssuerURL, cfg.ClientID, cfg.RedirectURI, cfg.Scopes, cfg.HTTPClient),
		log:    cfg.Logger,
		state:  StateUninitialized,
	}, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the identity decoded from the current access token. The
// second return is false when no session is active.
func (s *Session) User() (UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.state == StateAuthenticated
}

// AccessToken returns the current bearer token, or ErrNotAuthenticated.
func (s *Session) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	return s.accessToken, nil
}

// Initialize inspects pageURL for provider-callback markers, completes
// the appropriate handshake, and returns the URL with the markers
// stripped alongside the resulting state.
//
// Initialize is idempotent: calls after the first return the current
// state and the URL unchanged.
func (s *Session) Initialize(ctx context.Context, pageURL string) (string, State, error) {
	s.mu.Lock()
	if s.state != StateUninitialized {
		st := s.state
		s.mu.Unlock()
		return pageURL, st, nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	u, err := url.Parse(pageURL)
	if err != nil {
		s.settle(StateUnauthenticated)
		return pageURL, StateUnauthenticated, fmt.Errorf("ssosdk: parse page url: %w", err)
	}

	cb := detectCallback(u)
	cleaned := stripCallback(u)

	switch cb.kind {
	case callbackError:
		s.log.Warn("provider returned error on callback",
			"error", cb.errCode, "description", cb.errDesc)
		s.settle(StateUnauthenticated)
		return cleaned, StateUnauthenticated,
			fmt.Errorf("%w: %s: %s", ErrProvider, cb.errCode, cb.errDesc)

	case callbackCode:
		st, err := s.completeCodeFlow(ctx, cb)
		return cleaned, st, err

	case callbackImplicit:
		s.log.Info("adopting implicit-flow tokens",
			"token_len", len(cb.accessToken), "has_id_token", cb.idToken != "")
		s.adopt(&TokenResponse{
			AccessToken: cb.accessToken,
			IDToken:     cb.idToken,
			ExpiresIn:   cb.expiresIn,
		})
		return cleaned, StateAuthenticated, nil

	default:
		return cleaned, s.silentCheck(ctx), nil
	}
}

// completeCodeFlow validates the state parameter and exchanges the code.
func (s *Session) completeCodeFlow(ctx context.Context, cb callback) (State, error) {
	storedState := s.storageGet(storageKeyLoginState)
	verifier := s.storageGet(storageKeyPKCEVerifier)
	s.storageDelete(storageKeyLoginState)
	s.storageDelete(storageKeyPKCEVerifier)

	if storedState != "" && storedState != cb.state {
		s.log.Warn("authorization callback state mismatch")
		s.settle(StateUnauthenticated)
		return StateUnauthenticated, ErrStateMismatch
	}

	tok, err := s.client.Exchange(ctx, cb.code, verifier)
	if err != nil {
		s.log.Warn("code exchange failed", "err", err)
		s.settle(StateUnauthenticated)
		return StateUnauthenticated, err
	}

	s.log.Info("code exchange succeeded", "token_len", len(tok.AccessToken))
	s.adopt(tok)
	return StateAuthenticated, nil
}

// silentCheck tries to resume a session from a stored refresh token.
// Failure of any kind just leaves the session unauthenticated.
func (s *Session) silentCheck(ctx context.Context) State {
	rt := s.storageGet(storageKeyRefreshToken)
	if rt == "" {
		s.settle(StateUnauthenticated)
		return StateUnauthenticated
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.SilentCheckTimeout)
	defer cancel()

	tok, err := s.client.RefreshGrant(checkCtx, rt)
	if err != nil {
		s.log.Info("silent session check failed", "err", err)
		s.storageDelete(storageKeyRefreshToken)
		s.settle(StateUnauthenticated)
		return StateUnauthenticated
	}

	s.log.Info("silent session check succeeded")
	s.adopt(tok)
	return StateAuthenticated
}

// LoginURL generates fresh state and PKCE material, persists it, and
// returns the provider authorization URL the host should navigate to.
func (s *Session) LoginURL(ctx context.Context) (string, error) {
	state := newStateParam()
	verifier := newPKCEVerifier()

	if err := s.storageSet(storageKeyLoginState, state); err != nil {
		return "", fmt.Errorf("ssosdk: persist login state: %w", err)
	}
	if err := s.storageSet(storageKeyPKCEVerifier, verifier); err != nil {
		return "", fmt.Errorf("ssosdk: persist pkce verifier: %w", err)
	}

	return s.client.AuthCodeURL(ctx, state, verifier)
}

// Logout tears the session down and returns the provider's end-session
// URL for the host to navigate to. Idempotent: logging out an already
// unauthenticated session is a no-op returning an empty URL.
//
// Every configured storage area is cleared best-effort; one failing
// storage never stops the others from being cleared.
func (s *Session) Logout(ctx context.Context) (string, error) {
	s.mu.Lock()
	wasAuthenticated := s.state == StateAuthenticated
	idToken := s.idToken

	s.generation++
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
	s.state = StateUnauthenticated
	s.accessToken = ""
	s.refreshToken = ""
	s.idToken = ""
	s.user = UserInfo{}
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	for _, key := range sessionStorageKeys {
		s.storageDelete(key)
	}

	if !wasAuthenticated {
		return "", nil
	}

	s.log.Info("session logged out")

	endURL, err := s.client.LogoutURL(ctx, idToken, s.cfg.RedirectURI)
	if err != nil {
		// Local teardown already happened; the host just can't do the
		// provider round-trip.
		s.log.Warn("end-session url unavailable", "err", err)
		return "", nil
	}
	return endURL, nil
}

// getValidToken returns a bearer token good for at least the refresh
// margin, refreshing first when the current one is about to lapse. A
// refresh failure falls back to the token in hand; the API's verdict on
// it is authoritative anyway.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	current := s.accessToken
	rt := s.refreshToken
	gen := s.generation
	fresh := time.Until(s.expiresAt) > s.cfg.RefreshMargin
	s.mu.Unlock()

	if fresh || rt == "" {
		return current, nil
	}

	tok, err := s.client.RefreshGrant(ctx, rt)
	if err != nil {
		s.log.Warn("pre-request token refresh failed", "err", err)
		return current, nil
	}
	if !s.adoptIfGeneration(tok, gen) {
		return "", ErrNotAuthenticated
	}
	return tok.AccessToken, nil
}

// Refresh exchanges the held refresh token for a new token pair. A
// logout that lands while the grant is in flight wins: the result is
// discarded and ErrNotAuthenticated returned.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	rt := s.refreshToken
	gen := s.generation
	s.mu.Unlock()

	if rt == "" {
		return ErrNoRefreshToken
	}

	tok, err := s.client.RefreshGrant(ctx, rt)
	if err != nil {
		return err
	}

	if !s.adoptIfGeneration(tok, gen) {
		return ErrNotAuthenticated
	}
	return nil
}

// adopt installs a token response and moves the session to authenticated,
// starting the background refresh loop.
func (s *Session) adopt(tok *TokenResponse) {
	s.mu.Lock()
	s.adoptLocked(tok)
	s.mu.Unlock()
}

// adoptIfGeneration installs tok only if no logout happened since gen was
// observed. Reports whether the tokens were kept.
func (s *Session) adoptIfGeneration(tok *TokenResponse, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		s.log.Info("discarding refresh result from before logout")
		return false
	}
	s.adoptLocked(tok)
	return true
}

func (s *Session) adoptLocked(tok *TokenResponse) {
	now := time.Now()

	s.state = StateAuthenticated
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	if tok.IDToken != "" {
		s.idToken = tok.IDToken
	}
	s.expiresAt = expiryFrom(tok.AccessToken, tok.ExpiresIn, now)

	if user, err := decodeDisplayClaims(tok.AccessToken); err == nil {
		s.user = user
	}

	if s.refreshToken != "" {
		s.storageSet(storageKeyRefreshToken, s.refreshToken)
	}
	if s.idToken != "" {
		s.storageSet(storageKeyIDToken, s.idToken)
	}

	if s.refreshCancel == nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.refreshCancel = cancel
		go s.refreshLoop(loopCtx, s.generation)
	}
}

// refreshLoop keeps the access token fresh while the session lives. It
// wakes on a fixed cadence and refreshes once the token is within the
// configured margin of expiry. Refresh failures are silent; the session
// only degrades when the token actually expires without a replacement.
func (s *Session) refreshLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.generation != gen || s.state != StateAuthenticated {
			s.mu.Unlock()
			return
		}
		due := time.Until(s.expiresAt) <= s.cfg.RefreshMargin
		expired := time.Now().After(s.expiresAt)
		rt := s.refreshToken
		s.mu.Unlock()

		if !due {
			continue
		}

		if rt == "" {
			// Implicit-flow sessions can't refresh. Degrade once the
			// token has actually expired.
			if expired {
				s.expire(gen)
				return
			}
			continue
		}

		tok, err := s.client.RefreshGrant(ctx, rt)
		if err != nil {
			s.log.Warn("background token refresh failed", "err", err)
			if expired {
				s.expire(gen)
				return
			}
			continue
		}

		if !s.adoptIfGeneration(tok, gen) {
			return
		}
		s.log.Debug("access token refreshed", "token_len", len(tok.AccessToken))
	}
}

// expire moves an authenticated session to unauthenticated after its
// token lapsed with no way to renew it.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.state != StateAuthenticated {
		return
	}
	s.log.Info("session expired without refresh")
	s.state = StateUnauthenticated
	s.accessToken = ""
	s.user = UserInfo{}
	s.expiresAt = time.Time{}
	if s.refreshCancel != nil {
		s.refreshCancel()
		s.refreshCancel = nil
	}
}

// settle records a terminal initialization outcome.
func (s *Session) settle(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// storageGet returns the first non-empty value any storage holds for key.
func (s *Session) storageGet(key string) string {
	for _, st := range s.cfg.Storages {
		if v, err := st.Get(key); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// storageSet writes key to every storage; it succeeds if at least one
// write landed.
func (s *Session) storageSet(key, value string) error {
	var lastErr error
	ok := false
	for _, st := range s.cfg.Storages {
		if err := st.Set(key, value); err != nil {
			lastErr = err
			continue
		}
		ok = true
	}
	if !ok && lastErr != nil {
		return lastErr
	}
	return nil
}

// storageDelete removes key from every storage, ignoring individual
// failures.
func (s *Session) storageDelete(key string) {
	for _, st := range s.cfg.Storages {
		if err := st.Delete(key); err != nil {
			s.log.Debug("storage delete failed", "key", key, "err", err)
		}
	}
}
