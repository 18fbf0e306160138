package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// kvEntry is the stored shape for generic key/value pairs
type kvEntry struct {
	Key   string `badgerhold:"key"`
	Value string
}

// KeyValueStorage implements interfaces.KeyValueStorage on badgerhold
type KeyValueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKeyValueStorage creates a new KeyValueStorage instance
func NewKeyValueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KeyValueStorage{
		db:     db,
		logger: logger,
	}
}

func (s *KeyValueStorage) Get(ctx context.Context, key string) (string, error) {
	var entry kvEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", fmt.Errorf("key %s: %w", key, models.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get value: %w", err)
	}
	return entry.Value, nil
}

func (s *KeyValueStorage) Set(ctx context.Context, key, value string) error {
	entry := kvEntry{Key: key, Value: value}
	if err := s.db.Store().Upsert(key, &entry); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

func (s *KeyValueStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &kvEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}
