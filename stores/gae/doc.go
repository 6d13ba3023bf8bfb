//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// authsession.Store. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses one kind:
//   - SessionEntry: one entity per entry of a persisted session record,
//     keyed by "<session>/<entry>"
//
// # Namespacing
//
// Pass a namespace when creating the store to isolate tenants:
//
//	store := gae.NewStore(client, "tenant-123", "service@example.com")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "", "service@example.com")
//	mgr := authsession.NewManager(email, provider, store)
package gae
