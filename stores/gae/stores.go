//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/panyam/authsession"
)

// KindSessionEntry is the Datastore kind of session record entries
const KindSessionEntry = "SessionEntry"

var _ authsession.Store = (*Store)(nil)

// Store implements authsession.Store using Google Cloud Datastore.
// Set and Delete are buffered until Save, which applies them in one transaction.
type Store struct {
	client    *datastore.Client
	namespace string
	session   string
	ctx       context.Context

	mu      *sync.Mutex
	pending map[string]*string // nil value means delete
}

// NewStore creates a new Datastore-backed Store for the named session
func NewStore(client *datastore.Client, namespace, session string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		session:   session,
		ctx:       context.Background(),
		mu:        &sync.Mutex{},
		pending:   make(map[string]*string),
	}
}

// WithContext returns a store sharing the same pending changes that issues
// its Datastore calls with ctx
func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{
		client:    s.client,
		namespace: s.namespace,
		session:   s.session,
		ctx:       ctx,
		mu:        s.mu,
		pending:   s.pending,
	}
}

func (s *Store) entryKey(entry string) *datastore.Key {
	key := datastore.NameKey(KindSessionEntry, s.session+"/"+entry, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	if v, ok := s.pending[key]; ok {
		s.mu.Unlock()
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	s.mu.Unlock()

	var entity EntryEntity
	if err := s.client.Get(s.ctx, s.entryKey(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return "", false, nil
		}
		return "", false, err
	}
	return entity.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = &value
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = nil
	return nil
}

// Save applies buffered changes in a single transaction
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	now := time.Now()
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		for entry, value := range s.pending {
			key := s.entryKey(entry)
			if value == nil {
				if err := tx.Delete(key); err != nil {
					return err
				}
				continue
			}
			entity := &EntryEntity{
				Key:       key,
				Session:   s.session,
				Entry:     entry,
				Value:     *value,
				UpdatedAt: now,
			}
			if _, err := tx.Put(key, entity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session entries: %w", err)
	}

	clear(s.pending)
	return nil
}
