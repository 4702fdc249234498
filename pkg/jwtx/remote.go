package jwtx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultJWKSTTL is how long a fetched key set is trusted before the
	// next resolve triggers a refetch. Provider keys rotate slowly.
	DefaultJWKSTTL = 24 * time.Hour

	// DefaultMinRefresh bounds how often an unknown kid can force a
	// refetch. Without it a storm of garbage tokens would hammer the
	// provider's JWKS endpoint.
	DefaultMinRefresh = time.Minute
)

// RemoteKeySet resolves verification keys from an identity provider's
// rotating JWKS endpoint. Fetched keys are cached with a TTL; concurrent
// cache misses coalesce into a single outbound fetch, and a kid that is
// missing from a freshly fetched set is reported as unknown rather than
// retried.
type RemoteKeySet struct {
	url    string
	ttl    time.Duration
	minGap time.Duration
	client *http.Client

	keys *KeySet

	mu        sync.RWMutex
	fetchedAt time.Time

	group singleflight.Group
}

// NewRemoteKeySet creates a resolver for the given JWKS URL. A nil client
// falls back to a default with a sane timeout; ttl <= 0 means
// DefaultJWKSTTL.
func NewRemoteKeySet(jwksURL string, ttl time.Duration, client *http.Client) *RemoteKeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultJWKSTTL
	}

	return &RemoteKeySet{
		url:    jwksURL,
		ttl:    ttl,
		minGap: DefaultMinRefresh,
		client: client,
		keys:   NewKeySet(),
	}
}

// ResolveKey returns the public key for kid, fetching the provider's key
// set when the cache is cold, stale, or simply doesn't know the kid yet.
func (r *RemoteKeySet) ResolveKey(ctx context.Context, kid string) (any, error) {
	if r.fresh() {
		if pk, err := r.keys.Get(kid); err == nil {
			return pk, nil
		}
		// Known-fresh set without this kid: only refetch if enough time
		// has passed since the last fetch.
		if r.sinceFetch() < r.minGap {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}
	}

	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	// Retry the lookup exactly once against the fresh set.
	pk, err := r.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
	}
	return pk, nil
}

// WarmUp primes the cache. Called at startup so the first request doesn't
// pay the fetch; failure is not fatal, the next resolve will retry.
func (r *RemoteKeySet) WarmUp(ctx context.Context) error {
	return r.refresh(ctx)
}

// IsReady reports whether at least one key is cached.
func (r *RemoteKeySet) IsReady() bool {
	return r.keys.IsReady()
}

func (r *RemoteKeySet) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) < r.ttl
}

func (r *RemoteKeySet) sinceFetch() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fetchedAt.IsZero() {
		return r.ttl
	}
	return time.Since(r.fetchedAt)
}

// refresh fetches the key set. All concurrent callers share one flight;
// only the goroutine that triggered the fetch does network work.
func (r *RemoteKeySet) refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("jwks", func() (any, error) {
		jwks, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}

		r.keys.ResetFromJWKS(*jwks)

		r.mu.Lock()
		r.fetchedAt = time.Now()
		r.mu.Unlock()

		return nil, nil
	})
	return err
}

func (r *RemoteKeySet) fetch(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch jwks: %w", ErrKeyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks endpoint returned %d", ErrKeyUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %w", ErrKeyUnavailable, err)
	}

	return &jwks, nil
}
