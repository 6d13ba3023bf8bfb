package scs

import (
	"context"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *scs.SessionManager {
	sm := scs.New()
	sm.Store = memstore.NewWithCleanupInterval(0)
	sm.Lifetime = 24 * time.Hour
	return sm
}

func TestSessionStore_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	sm := newManager()

	store, err := NewSessionStore(ctx, sm, "")
	require.NoError(t, err)
	assert.Empty(t, store.Token(), "fresh session has no token before Save")

	require.NoError(t, store.Set("fb_idToken", "A"))
	require.NoError(t, store.Set("fb_refreshToken", "R1"))
	require.NoError(t, store.Save())
	require.NotEmpty(t, store.Token())
	assert.True(t, store.Expiry().After(time.Now()))

	reloaded, err := NewSessionStore(ctx, sm, store.Token())
	require.NoError(t, err)

	v, ok, err := reloaded.Get("fb_refreshToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "R1", v)

	_, ok, err = reloaded.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_CommittedBytesUseGobCodec(t *testing.T) {
	ctx := context.Background()
	sm := newManager()

	store, err := NewSessionStore(ctx, sm, "")
	require.NoError(t, err)
	require.NoError(t, store.Set("fb_tokenExpiry", "1700000000000"))
	require.NoError(t, store.Save())

	b, found, err := sm.Store.Find(store.Token())
	require.NoError(t, err)
	require.True(t, found)

	_, values, err := scs.GobCodec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", values["fb_tokenExpiry"])
}

func TestSessionStore_EmptySaveDestroys(t *testing.T) {
	ctx := context.Background()
	sm := newManager()

	store, err := NewSessionStore(ctx, sm, "")
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Save())
	token := store.Token()

	require.NoError(t, store.Delete("k"))
	require.NoError(t, store.Save())
	assert.Empty(t, store.Token())

	_, found, err := sm.Store.Find(token)
	require.NoError(t, err)
	assert.False(t, found, "destroyed session should be gone from the store")
}

func TestSessionStore_UnknownToken(t *testing.T) {
	store, err := NewSessionStore(context.Background(), newManager(), "no-such-token")
	require.NoError(t, err)

	_, ok, err := store.Get("fb_idToken")
	require.NoError(t, err)
	assert.False(t, ok)
}
