// Package fs provides a file system-based session store for authsession.
//
// Entries live in a single JSON file written with owner-only permissions via
// an atomic rename. The file can optionally be sealed with XChaCha20-Poly1305.
package fs

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/panyam/authsession"
)

// DefaultFileName is the file used when no explicit path is given
const DefaultFileName = "session.json"

// ErrDecrypt is returned when an encrypted file cannot be opened with the key
var ErrDecrypt = errors.New("failed to decrypt session file")

var _ authsession.Store = (*FileStore)(nil)

// FileStore stores session entries as a JSON file on the filesystem
type FileStore struct {
	mu       sync.RWMutex
	path     string
	values   map[string]string
	modified bool
	aead     cipher.AEAD
}

// sessionFile is the JSON structure stored on disk
type sessionFile struct {
	Entries map[string]string `json:"entries"`
}

// Option configures a FileStore
type Option func(*FileStore) error

// WithEncryptionKey seals the file with XChaCha20-Poly1305. key must be 32 bytes.
func WithEncryptionKey(key []byte) Option {
	return func(s *FileStore) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
		s.aead = aead
		return nil
	}
}

// NewFileStore creates a new FS-based store.
// If path is empty, defaults to <UserConfigDir>/<appName>/session.json
func NewFileStore(path string, appName string, opts ...Option) (*FileStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authsession"
		}
		path = filepath.Join(configDir, appName, DefaultFileName)
	}

	store := &FileStore{
		path:   path,
		values: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, err
		}
	}

	// Load existing entries if the file exists
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return store, nil
}

// load reads entries from disk
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if s.aead != nil {
		if data, err = s.open(data); err != nil {
			return err
		}
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}

	s.values = file.Entries
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return nil
}

// Get retrieves a value
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores a value; call Save to write it out
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.modified = true
	return nil
}

// Delete removes a value; call Save to write it out
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
	return nil
}

// Save persists entries to disk. An empty store removes the file.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		return nil
	}

	if len(s.values) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		s.modified = false
		return nil
	}

	// Ensure directory exists with restricted permissions
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(sessionFile{Entries: s.values}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if s.aead != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	if err := writeAtomicFile(s.path, data); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.modified = false
	return nil
}

// Path returns the path to the session file
func (s *FileStore) Path() string {
	return s.path
}

// seal returns nonce || ciphertext
func (s *FileStore) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *FileStore) open(data []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, ErrDecrypt
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// writeAtomicFile writes data to a file atomically by writing to a temp file first
func writeAtomicFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
