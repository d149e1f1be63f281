package badger

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	job      interfaces.JobStorage
	clip     interfaces.ClipStorage
	template interfaces.TemplateStorage
	logger   arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")
	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		clip:     NewClipStorage(db, logger),
		template: NewTemplateStorage(db, logger),
		logger:   logger,
	}
}

// JobStorage returns the generation job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ClipStorage returns the candidate clip catalog interface
func (m *Manager) ClipStorage() interfaces.ClipStorage {
	return m.clip
}

// TemplateStorage returns the template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage {
	return m.template
}

// DB returns the underlying badgerhold store
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadBuiltinTemplates seeds the template store with the embedded templates
func (m *Manager) LoadBuiltinTemplates(ctx context.Context) error {
	return LoadBuiltinTemplates(ctx, m.template, m.logger)
}

// LoadTemplatesFromFiles seeds the template store from a directory of template files
func (m *Manager) LoadTemplatesFromFiles(ctx context.Context, dirPath string) error {
	return LoadTemplatesFromFiles(ctx, m.template, dirPath, m.logger)
}

// LoadCatalogFromFiles seeds the clip catalog from a directory of catalog files
func (m *Manager) LoadCatalogFromFiles(ctx context.Context, dirPath string) error {
	return LoadCatalogFromFiles(ctx, m.clip, dirPath, m.logger)
}
