package jwtx

import (
	"context"
	"sync"
)

// KeySet holds public verification keys in memory, keyed by kid.
// It's thread-safe: the remote resolver swaps keys in on refresh while
// request goroutines read concurrently.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]any // kid: *rsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		pub: make(map[string]any),
	}
}

// AddSigner registers a Signer’s public JWK into the KeySet.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrUnknownKID
}

// ResolveKey makes a static KeySet usable wherever a KeyResolver is
// expected. Handy for tests and for setups with pinned keys.
func (k *KeySet) ResolveKey(_ context.Context, kid string) (any, error) {
	return k.Get(kid)
}

// PublicJWKS returns a snapshot of the KeySet's JWKS for HTTP serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.jks
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS. The remote resolver calls
// this with whatever the provider currently publishes. Keys we can't use
// (encryption keys, non-RSA types) are skipped, not fatal: providers
// routinely publish a mixed set.
func (k *KeySet) ResetFromJWKS(jwks JWKS) {
	newMap := make(map[string]any, len(jwks.Keys))
	kept := JWKS{}
	for _, j := range jwks.Keys {
		if j.Use != "" && j.Use != "sig" {
			continue
		}
		key, err := parseJWKToKey(j)
		if err != nil {
			continue
		}
		newMap[j.Kid] = key
		kept.Keys = append(kept.Keys, j)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = newMap
	k.jks = kept
}
