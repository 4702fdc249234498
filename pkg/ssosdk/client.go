package ssosdk

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/quokkaworks/todo-sso/pkg/jwtx"
)

// Client talks to the identity provider. It resolves endpoints once via
// OIDC discovery and caches the document for the client's lifetime; the
// provider's endpoint set does not rotate the way its keys do.
type Client struct {
	issuer      string
	clientID    string
	redirectURI string
	scopes      []string
	httpClient  *http.Client

	mu    sync.Mutex
	disco *jwtx.DiscoveryDocument
}

// NewClient builds a provider client. httpClient may be nil, in which
// case a client with a sane timeout is used.
func NewClient(issuer, clientID, redirectURI string, scopes []string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		issuer:      strings.TrimRight(issuer, "/"),
		clientID:    clientID,
		redirectURI: redirectURI,
		scopes:      scopes,
		httpClient:  httpClient,
	}
}

// discover returns the cached discovery document, fetching it on first use.
func (c *Client) discover(ctx context.Context) (*jwtx.DiscoveryDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disco != nil {
		return c.disco, nil
	}

	doc, err := jwtx.Discover(ctx, c.issuer, c.httpClient)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: %w", ErrProvider, err)
	}
	c.disco = doc
	return doc, nil
}

// AuthCodeURL builds the provider's authorization URL for the code flow
// with a PKCE S256 challenge derived from verifier.
func (c *Client) AuthCodeURL(ctx context.Context, state, verifier string) (string, error) {
	doc, err := c.discover(ctx)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("scope", strings.Join(c.scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", pkceChallenge(verifier))
	q.Set("code_challenge_method", "S256")

	return doc.AuthorizationEndpoint + "?" + q.Encode(), nil
}

// Exchange redeems an authorization code for tokens, presenting the PKCE
// verifier stored at login time.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("code_verifier", verifier)

	return c.requestToken(ctx, form)
}

// RefreshGrant exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)

	return c.requestToken(ctx, form)
}

// LogoutURL builds the provider's end-session URL. Returns an empty
// string when the provider does not advertise an end-session endpoint.
func (c *Client) LogoutURL(ctx context.Context, idTokenHint, postLogoutRedirect string) (string, error) {
	doc, err := c.discover(ctx)
	if err != nil {
		return "", err
	}
	if doc.EndSessionEndpoint == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("client_id", c.clientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}

	return doc.EndSessionEndpoint + "?" + q.Encode(), nil
}

// requestToken POSTs a form to the token endpoint and decodes the response.
func (c *Client) requestToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	doc, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build token request: %w", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, apiError(ErrProvider, resp.StatusCode, body)
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %w", ErrProvider, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrProvider)
	}
	return &tok, nil
}

// newPKCEVerifier returns a fresh high-entropy code verifier (RFC 7636).
func newPKCEVerifier() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// pkceChallenge derives the S256 challenge for a verifier.
func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newStateParam returns a random state value for CSRF protection on the
// authorization redirect.
func newStateParam() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
