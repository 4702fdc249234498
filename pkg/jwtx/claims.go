package jwtx

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims the todo API cares about. The identity
// provider puts plenty more in its tokens; unknown claims are ignored on
// decode and nothing here is normalised or enriched after verification.
type Claims struct {
	jwt.RegisteredClaims

	// Session ID minted by the provider for this login.
	SID string `json:"sid,omitempty"`

	// Scope is the space-delimited OAuth2 scope string, e.g.
	// "openid profile email todo:write".
	Scope string `json:"scope,omitempty"`

	// PreferredUsername is the login name shown in the UI.
	PreferredUsername string `json:"preferred_username,omitempty"`

	// Email for the authenticated user.
	Email string `json:"email,omitempty"`

	// Name is the display name for the user.
	Name string `json:"name,omitempty"`
}

// NewClaims builds minimally-correct claims. Mostly used by tests and the
// local dev token mint; real tokens come from the identity provider.
func NewClaims(
	subject, issuer string,
	audience []string,
	username, email string,
	scope string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope:             scope,
		PreferredUsername: username,
		Email:             email,
	}
}

// ScopeList splits the scope claim into its individual scopes.
// Returns nil when the claim is empty.
func (c *Claims) ScopeList() []string {
	s := strings.TrimSpace(c.Scope)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// DisplayName picks the friendliest identifier we have for logging and UI.
func (c *Claims) DisplayName() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	// Check expired (exp)
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	// Check if a valid token isn't used before it is valid (nbf)
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
