package jwtx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DiscoveryDocument is the slice of the OIDC discovery document the todo
// stack actually uses. The provider publishes it per realm at
// <issuer>/.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Discover fetches and validates the provider's discovery document for the
// given issuer URL.
func Discover(ctx context.Context, issuer string, client *http.Client) (*DiscoveryDocument, error) {
	if client == nil {
		client = http.DefaultClient
	}

	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch discovery: %w", ErrKeyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: discovery endpoint returned %d", ErrKeyUnavailable, resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode discovery: %w", ErrKeyUnavailable, err)
	}

	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("%w: discovery document missing jwks_uri", ErrKeyUnavailable)
	}

	return &doc, nil
}
