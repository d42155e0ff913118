package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/replydesk/internal/common"
	"github.com/ternarybob/replydesk/internal/interfaces"
	"github.com/ternarybob/replydesk/internal/storage/badger"
	"github.com/ternarybob/replydesk/internal/storage/file"
)

// NewStorageManager opens Badger for task documents and selects the
// session backend from config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Sessions.Backend {
	case "badger", "":
		return badger.NewManager(logger, config, nil)
	case "file":
		sessions, err := file.NewSessionStore(config.Storage.Sessions.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open file session store: %w", err)
		}
		return badger.NewManager(logger, config, sessions)
	}
	return nil, fmt.Errorf("unsupported session backend: %s (expected 'badger' or 'file')", config.Storage.Sessions.Backend)
}
