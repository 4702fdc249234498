package ssosdk

import "sync"

// Keys the session persists across page loads. Logout removes every one
// of these from every configured storage area.
const (
	storageKeyRefreshToken = "sso.refresh_token"
	storageKeyPKCEVerifier = "sso.pkce_verifier"
	storageKeyLoginState   = "sso.login_state"
	storageKeyIDToken      = "sso.id_token"
)

// sessionStorageKeys lists everything Logout must clear.
var sessionStorageKeys = []string{
	storageKeyRefreshToken,
	storageKeyPKCEVerifier,
	storageKeyLoginState,
	storageKeyIDToken,
}

// Storage is a small key-value store for session material. Hosts back it
// with whatever persistence they have: browser localStorage via a bridge,
// a cookie jar, a keyring, or a file. Implementations must be safe for
// concurrent use.
//
// Get returns an empty string for a missing key; only genuine storage
// failures return an error.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStorage is an in-process Storage. Useful for tests and CLI
// sessions that don't outlive the process.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
