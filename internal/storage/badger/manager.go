package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
)

// Manager bundles the typed storages behind one Badger connection
type Manager struct {
	db           *BadgerDB
	logger       arbor.ILogger
	jobs         interfaces.JobStorage
	attestations interfaces.AttestationStorage
	analyses     interfaces.AnalysisStorage
	users        interfaces.UserStorage
	kv           interfaces.KeyValueStorage
}

// NewManager opens the database and wires up the typed storages
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
	}

	return &Manager{
		db:           db,
		logger:       logger,
		jobs:         NewJobStorage(db, logger),
		attestations: NewAttestationStorage(db, logger),
		analyses:     NewAnalysisStorage(db, logger),
		users:        NewUserStorage(db, logger),
		kv:           NewKeyValueStorage(db, logger),
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage                 { return m.jobs }
func (m *Manager) AttestationStorage() interfaces.AttestationStorage { return m.attestations }
func (m *Manager) AnalysisStorage() interfaces.AnalysisStorage       { return m.analyses }
func (m *Manager) UserStorage() interfaces.UserStorage               { return m.users }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage       { return m.kv }

// Close closes the underlying database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
