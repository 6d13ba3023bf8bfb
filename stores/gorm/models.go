//go:build !wasm
// +build !wasm

package gorm

import "time"

// EntryModel is the GORM model for one entry of a persisted session record
type EntryModel struct {
	Namespace string    `gorm:"primaryKey;size:255"`
	Key       string    `gorm:"primaryKey;column:entry_key;size:64"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (EntryModel) TableName() string {
	return "session_entries"
}
