//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmulatorClient connects to the Datastore emulator, skipping the test
// when DATASTORE_EMULATOR_HOST is not set
func newEmulatorClient(t *testing.T) *datastore.Client {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "authsession-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func uniqueNamespace(t *testing.T) string {
	return fmt.Sprintf("test-%d", time.Now().UnixNano())
}

func TestEntryKey(t *testing.T) {
	s := NewStore(nil, "tenant-1", "service@example.com")
	key := s.entryKey("fb_idToken")

	assert.Equal(t, KindSessionEntry, key.Kind)
	assert.Equal(t, "service@example.com/fb_idToken", key.Name)
	assert.Equal(t, "tenant-1", key.Namespace)
}

func TestStore_PendingReadsNeedNoClient(t *testing.T) {
	s := NewStore(nil, "", "session")
	require.NoError(t, s.Set("k", "v"))

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WithContextSharesPending(t *testing.T) {
	s := NewStore(nil, "", "session")
	require.NoError(t, s.Set("k", "v"))

	scoped := s.WithContext(context.Background())
	v, ok, _ := scoped.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestStore_Emulator_SaveAndReload(t *testing.T) {
	client := newEmulatorClient(t)
	ns := uniqueNamespace(t)

	s := NewStore(client, ns, "service@example.com")
	require.NoError(t, s.Set("fb_idToken", "A"))
	require.NoError(t, s.Set("fb_refreshToken", "R1"))
	require.NoError(t, s.Save())

	other := NewStore(client, ns, "service@example.com")
	v, ok, err := other.Get("fb_refreshToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "R1", v)

	require.NoError(t, other.Delete("fb_refreshToken"))
	require.NoError(t, other.Save())

	_, ok, err = NewStore(client, ns, "service@example.com").Get("fb_refreshToken")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Emulator_SessionsAreIsolated(t *testing.T) {
	client := newEmulatorClient(t)
	ns := uniqueNamespace(t)

	a := NewStore(client, ns, "a@example.com")
	require.NoError(t, a.Set("fb_idToken", "A"))
	require.NoError(t, a.Save())

	_, ok, err := NewStore(client, ns, "b@example.com").Get("fb_idToken")
	require.NoError(t, err)
	assert.False(t, ok)
}
