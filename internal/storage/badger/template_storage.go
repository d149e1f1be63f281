package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TemplateStorage persists parsed templates for Badger
type TemplateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTemplateStorage creates a new TemplateStorage instance
func NewTemplateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TemplateStorage {
	return &TemplateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TemplateStorage) SaveTemplate(ctx context.Context, tmpl *models.StoredTemplate) error {
	if tmpl.ID == "" {
		return fmt.Errorf("template ID is required")
	}
	if err := s.db.Store().Upsert(tmpl.ID, tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func (s *TemplateStorage) GetTemplate(ctx context.Context, templateID string) (*models.StoredTemplate, error) {
	var tmpl models.StoredTemplate
	if err := s.db.Store().Get(templateID, &tmpl); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTemplateNotFound, templateID)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tmpl, nil
}

func (s *TemplateStorage) ListTemplates(ctx context.Context) ([]*models.StoredTemplate, error) {
	var templates []models.StoredTemplate
	if err := s.db.Store().Find(&templates, nil); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })

	result := make([]*models.StoredTemplate, len(templates))
	for i := range templates {
		result[i] = &templates[i]
	}
	return result, nil
}
