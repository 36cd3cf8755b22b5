package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db        *SQLiteDB
	job       interfaces.JobStorage
	page      interfaces.PageStorage
	taskEvent interfaces.TaskEventStorage
	logger    arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, databaseURL string) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, databaseURL)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		job:       NewJobStorage(db, logger),
		page:      NewPageStorage(db, logger),
		taskEvent: NewTaskEventStorage(db, logger),
		logger:    logger,
	}, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// PageStorage returns the Page storage interface
func (m *Manager) PageStorage() interfaces.PageStorage {
	return m.page
}

// TaskEventStorage returns the TaskEvent storage interface
func (m *Manager) TaskEventStorage() interfaces.TaskEventStorage {
	return m.taskEvent
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
