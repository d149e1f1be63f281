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

// ClipStorage implements the candidate clip catalog for Badger
type ClipStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClipStorage creates a new ClipStorage instance
func NewClipStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClipStorage {
	return &ClipStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ClipStorage) SaveClip(ctx context.Context, clip *models.CandidateClip) error {
	if clip.ID == "" {
		return fmt.Errorf("clip ID is required")
	}
	if clip.PropertyID == "" {
		return fmt.Errorf("clip %s has no property ID", clip.ID)
	}
	if err := s.db.Store().Upsert(clip.ID, clip); err != nil {
		return fmt.Errorf("failed to save clip: %w", err)
	}
	return nil
}

// ListCandidateClips returns the property's clips ordered by ID so callers see a stable order
func (s *ClipStorage) ListCandidateClips(ctx context.Context, propertyID string) ([]*models.CandidateClip, error) {
	var clips []models.CandidateClip
	if err := s.db.Store().Find(&clips, badgerhold.Where("PropertyID").Eq(propertyID)); err != nil {
		return nil, fmt.Errorf("failed to list clips for property %s: %w", propertyID, err)
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].ID < clips[j].ID })

	result := make([]*models.CandidateClip, len(clips))
	for i := range clips {
		result[i] = &clips[i]
	}
	return result, nil
}

func (s *ClipStorage) DeleteClip(ctx context.Context, clipID string) error {
	if err := s.db.Store().Delete(clipID, &models.CandidateClip{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}
