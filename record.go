package authsession

import (
	"fmt"
	"strconv"
	"time"
)

// Keys of the persisted record. All three are written together and erased
// together.
const (
	KeyIDToken      = "fb_idToken"
	KeyRefreshToken = "fb_refreshToken"
	KeyTokenExpiry  = "fb_tokenExpiry"
)

var recordKeys = []string{KeyIDToken, KeyRefreshToken, KeyTokenExpiry}

// saveSession writes the full record and flushes the store
func saveSession(store Store, s *Session) error {
	entries := map[string]string{
		KeyIDToken:      s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyTokenExpiry:  strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10),
	}
	for _, key := range recordKeys {
		if err := store.Set(key, entries[key]); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// loadSession reads the persisted record.
// Returns nil, nil when the record is absent, partial or unparsable; only
// store I/O failures are errors.
func loadSession(store Store) (*Session, error) {
	values := make(map[string]string, len(recordKeys))
	for _, key := range recordKeys {
		v, ok, err := store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !ok || v == "" {
			return nil, nil
		}
		values[key] = v
	}

	expiryMs, err := strconv.ParseInt(values[KeyTokenExpiry], 10, 64)
	if err != nil {
		return nil, nil
	}

	return &Session{
		AccessToken:  values[KeyIDToken],
		RefreshToken: values[KeyRefreshToken],
		ExpiresAt:    time.UnixMilli(expiryMs),
	}, nil
}

// persistedRefreshToken returns the stored refresh token, or "" if none
func persistedRefreshToken(store Store) (string, error) {
	v, ok, err := store.Get(KeyRefreshToken)
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}

// eraseSession deletes every entry of the record and flushes the store.
// All deletes are attempted even if one fails.
func eraseSession(store Store) error {
	var firstErr error
	for _, key := range recordKeys {
		if err := store.Delete(key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	if err := store.Save(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to save store: %w", err)
	}
	return firstErr
}
