//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of authsession.Store.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and suits daemons that already keep their state in a relational database.
//
// # Database Schema
//
// The package auto-migrates one table:
//   - session_entries: one row per (namespace, entry_key)
//
// A namespace isolates the record of one session from another so several
// managers can share a database.
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("authsession.db"), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db, "service@example.com")
//	mgr := authsession.NewManager(email, provider, store)
package gorm
