//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
)

// EntryEntity is the Datastore entity for one entry of a session record
// Key format: Session + "/" + Entry
type EntryEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Session   string         `datastore:"session"`
	Entry     string         `datastore:"entry"`
	Value     string         `datastore:"value,noindex"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}
