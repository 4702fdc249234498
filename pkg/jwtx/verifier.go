package jwtx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a bearer token and gives you back the claims if it's
// legit.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// KeyResolver turns a token's kid header into verification key material.
// *KeySet serves pinned keys, *RemoteKeySet fetches from the provider.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (any, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrMissingKID  = errors.New("jwtx: missing kid")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")

	// ErrKeyUnavailable means we could not obtain key material from the
	// identity provider (network or config trouble, not a bad token).
	ErrKeyUnavailable = errors.New("jwtx: key unavailable")
)

// RS256Verifier validates JWTs signed using RS256. That's the only
// algorithm we accept; "none", the HMAC family and everything else is
// rejected before any key material is touched.
type RS256Verifier struct {
	keys   KeyResolver
	issuer string
	aud    []string
	leeway time.Duration
}

// NewVerifierRS256 creates a verifier resolving keys through the given
// KeyResolver. Empty issuer/audience means "don't enforce".
func NewVerifierRS256(keys KeyResolver, issuer string, aud []string) *RS256Verifier {
	return &RS256Verifier{keys: keys, issuer: issuer, aud: aud}
}

// WithLeeway sets the clock-skew grace period applied to exp and nbf.
// Zero (the default) means exact clock comparison.
func (v *RS256Verifier) WithLeeway(leeway time.Duration) *RS256Verifier {
	v.leeway = leeway
	return v
}

// Verify validates the JWT string and returns its parsed Claims. The
// returned claims are exactly what the token carried; nothing is enriched.
func (v *RS256Verifier) Verify(ctx context.Context, tokenStr string) (Claims, error) {
	// Check structure and algorithm up front so the error taxonomy stays
	// honest: a token declaring HS256 is an algorithm mismatch, not a
	// signature failure.
	header, err := peekHeader(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if header.Alg != jwt.SigningMethodRS256.Alg() {
		return Claims{}, fmt.Errorf("%w: got %q", ErrAlgMismatch, header.Alg)
	}
	if header.Kid == "" {
		return Claims{}, ErrMissingKID
	}

	// Expiry wins over everything else, and a stale token should not cost
	// us a key fetch. The structural decode here is unverified; the real
	// claims still come out of the signed parse below.
	if peeked, err := peekClaims(tokenStr); err == nil {
		if err := peeked.ValidateExpiryWithLeeway(v.leeway); errors.Is(err, ErrExpired) {
			return Claims{}, ErrExpired
		}
	}

	pub, err := v.keys.ResolveKey(ctx, header.Kid)
	if err != nil {
		if errors.Is(err, ErrUnknownKID) {
			return Claims{}, err
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidClaim
	}

	// Now check the claim requirements
	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.aud); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.leeway); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}

// tokenHeader is the decoded JOSE header, just the fields we act on.
type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// peekHeader decodes the header segment without verifying anything.
func peekHeader(tokenStr string) (tokenHeader, error) {
	var h tokenHeader

	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return h, ErrMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return h, fmt.Errorf("%w: bad header encoding", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("%w: bad header json", ErrMalformed)
	}

	return h, nil
}

// peekClaims decodes the payload segment without verifying the signature.
func peekClaims(tokenStr string) (Claims, error) {
	var c Claims

	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return c, ErrMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return c, fmt.Errorf("%w: bad payload encoding", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: bad payload json", ErrMalformed)
	}

	return c, nil
}

// mapParseError folds golang-jwt's error tree into our taxonomy.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %w", ErrInvalidClaim, err)
	}
}
