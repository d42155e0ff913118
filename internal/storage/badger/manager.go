package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	sessions interfaces.SessionStore
	tasks    interfaces.TaskStorage
	logger   arbor.ILogger
}

// NewManager opens the database and builds the stores on it. sessions
// overrides the session backend (e.g. the file store); nil uses Badger.
func NewManager(logger arbor.ILogger, config *common.Config, sessions interfaces.SessionStore) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	if sessions == nil {
		ttl := common.ParseDuration(config.Storage.Sessions.TTL, 0)
		sessions = NewSessionStorage(db, logger, ttl)
	}

	manager := &Manager{
		db:       db,
		sessions: sessions,
		tasks:    NewTaskStorage(db, logger),
		logger:   logger,
	}

	logger.Debug().Str("session_backend", config.Storage.Sessions.Backend).Msg("Storage manager initialized")

	return manager, nil
}

func (m *Manager) SessionStore() interfaces.SessionStore {
	return m.sessions
}

func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.tasks
}

func (m *Manager) Close() error {
	return m.db.Close()
}
