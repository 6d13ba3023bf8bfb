package authsession

import (
	"sort"
	"sync"
)

// Store defines the interface for the session-scoped key/value store the
// persisted record lives in
type Store interface {
	// Get retrieves a value.
	// Returns "", false, nil if no value exists for the key
	Get(key string) (value string, ok bool, err error)

	// Set stores a value for a key
	Set(key, value string) error

	// Delete removes a key. Deleting a missing key is not an error
	Delete(key string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemoryStore is an in-process Store. Nothing survives the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Save() error {
	return nil
}

// Keys returns the stored keys in sorted order
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
