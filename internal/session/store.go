// Package session owns the persisted auth state and the per-run
// authentication state machine built on top of it.
package session

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"go-portal-client/internal/model"
)

// State is the unit of persisted auth data. It is always written and cleared
// as a whole, never one field at a time.
type State struct {
	AccessToken  string      `json:"access_token,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	User         *model.User `json:"user,omitempty"`
	CachedRole   string      `json:"user_role,omitempty"`
}

func (s State) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil && s.CachedRole == ""
}

// Store is the single source of truth for persisted session state. Load
// degrades corrupt or missing data to an empty State rather than failing.
type Store interface {
	Load() State
	Save(state State) error
	Clear() error
}

// FileStore persists session state as a JSON file, optionally sealed with
// ChaCha20-Poly1305 when constructed with a key.
type FileStore struct {
	path string
	key  []byte
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NewEncryptedFileStore requires a 32-byte key.
func NewEncryptedFileStore(path string, key []byte) (*FileStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("session key must be %d bytes", chacha20poly1305.KeySize)
	}

	return &FileStore{path: path, key: key}, nil
}

func (f *FileStore) Load() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return State{}
	}

	if f.key != nil {
		data, err = f.open(data)
		if err != nil {
			return State{}
		}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}
	}

	return state
}

func (f *FileStore) Save(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if f.key != nil {
		data, err = f.seal(data)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a half-written session.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (f *FileStore) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (f *FileStore) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed session too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// MemoryStore keeps session state in memory. Used by tests and throwaway runs.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MemoryStore) Save(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
	return nil
}
