//go:build !wasm
// +build !wasm

package gorm

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authsession.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestStore_SaveAndReload(t *testing.T) {
	db := openTestDB(t)

	store := NewStore(db, "service@example.com")
	require.NoError(t, store.Set("fb_idToken", "A"))
	require.NoError(t, store.Set("fb_refreshToken", "R1"))
	require.NoError(t, store.Save())

	other := NewStore(db, "service@example.com")
	v, ok, err := other.Get("fb_refreshToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "R1", v)
}

func TestStore_PendingChangesVisibleBeforeSave(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, "ns")

	require.NoError(t, store.Set("k", "v"))
	v, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	// not yet in the database
	_, ok, err = NewStore(db, "ns").Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Upsert(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, "ns")

	require.NoError(t, store.Set("fb_refreshToken", "R1"))
	require.NoError(t, store.Save())
	require.NoError(t, store.Set("fb_refreshToken", "R2"))
	require.NoError(t, store.Save())

	var count int64
	require.NoError(t, db.Model(&EntryModel{}).Where("namespace = ?", "ns").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	v, _, err := NewStore(db, "ns").Get("fb_refreshToken")
	require.NoError(t, err)
	assert.Equal(t, "R2", v)
}

func TestStore_Delete(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, "ns")

	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Save())

	require.NoError(t, store.Delete("k"))
	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok, "pending delete should hide the row")

	require.NoError(t, store.Delete("never-set"))
	require.NoError(t, store.Save())

	_, ok, err = NewStore(db, "ns").Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	db := openTestDB(t)

	a := NewStore(db, "a@example.com")
	require.NoError(t, a.Set("fb_idToken", "A"))
	require.NoError(t, a.Save())

	b := NewStore(db, "b@example.com")
	_, ok, err := b.Get("fb_idToken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "b@example.com", b.Namespace())
}
