// Package scs keeps the persisted session record inside an scs session.
//
// The record is held in one scs session identified by its token, so any
// scs.Store backend (memstore, redis, postgres, ...) can hold it. Save
// commits the session; saving an empty session destroys it.
package scs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/panyam/authsession"
)

var _ authsession.Store = (*SessionStore)(nil)

// SessionStore implements authsession.Store on top of an scs.SessionManager
type SessionStore struct {
	mu      sync.Mutex
	session *scs.SessionManager
	ctx     context.Context
	token   string
	expiry  time.Time
}

// NewSessionStore loads the session identified by token from sm.
// An empty or unknown token starts a fresh session that gets a token on the
// first Save.
func NewSessionStore(ctx context.Context, sm *scs.SessionManager, token string) (*SessionStore, error) {
	if sm == nil {
		sm = scs.New()
	}
	loaded, err := sm.Load(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &SessionStore{
		session: sm,
		ctx:     loaded,
		token:   token,
	}, nil
}

// Get retrieves a value
func (s *SessionStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Exists(s.ctx, key) {
		return "", false, nil
	}
	return s.session.GetString(s.ctx, key), true, nil
}

// Set stores a value in the loaded session
func (s *SessionStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Put(s.ctx, key, value)
	return nil
}

// Delete removes a value from the loaded session
func (s *SessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Remove(s.ctx, key)
	return nil
}

// Save commits the session to the scs store.
// A session with no keys left is destroyed instead.
func (s *SessionStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.session.Keys(s.ctx)) == 0 {
		if err := s.session.Destroy(s.ctx); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		s.token = ""
		s.expiry = time.Time{}
		return nil
	}

	token, expiry, err := s.session.Commit(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	s.token = token
	s.expiry = expiry
	return nil
}

// Token returns the scs session token, or "" before the first Save
func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Expiry returns when the scs session expires, as of the last Save
func (s *SessionStore) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}
