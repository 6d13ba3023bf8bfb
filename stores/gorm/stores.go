//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/authsession"
)

// AutoMigrate runs database migrations for the session_entries table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EntryModel{})
}

var _ authsession.Store = (*Store)(nil)

// Store implements authsession.Store using GORM.
// Set and Delete are buffered and applied in one transaction by Save.
type Store struct {
	db        *gorm.DB
	namespace string

	mu      sync.Mutex
	pending map[string]*string // nil value means delete
}

func NewStore(db *gorm.DB, namespace string) *Store {
	return &Store{
		db:        db,
		namespace: namespace,
		pending:   make(map[string]*string),
	}
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

	var model EntryModel
	err := s.db.First(&model, "namespace = ? AND entry_key = ?", s.namespace, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Value, true, nil
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

// Save applies buffered changes atomically. Pending changes are kept if the
// transaction fails so a later Save can retry them.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range s.pending {
			if value == nil {
				if err := tx.Where("namespace = ? AND entry_key = ?", s.namespace, key).
					Delete(&EntryModel{}).Error; err != nil {
					return err
				}
				continue
			}
			model := &EntryModel{Namespace: s.namespace, Key: key, Value: *value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session entries: %w", err)
	}

	s.pending = make(map[string]*string)
	return nil
}

// Namespace returns the namespace this store reads and writes
func (s *Store) Namespace() string {
	return s.namespace
}
