package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/stayreel/internal/models"
)

// JobListOptions filters ListJobs results
type JobListOptions struct {
	Status models.JobStatus // Empty means any status
	Limit  int
}

// JobStorage - interface for generation job persistence.
// UpdateJob is the sole mutation primitive: it applies the patch only when the stored
// version equals expectedVersion, and reports whether it did.
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, jobID string) (*models.GenerationJob, error)
	UpdateJob(ctx context.Context, jobID string, expectedVersion int64, patch models.JobPatch) (bool, error)

	// ListStuckJobs returns processing jobs whose UpdatedAt is older than now-threshold
	// and whose CreatedAt is within now-lookback
	ListStuckJobs(ctx context.Context, now time.Time, threshold, lookback time.Duration) ([]*models.GenerationJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.GenerationJob, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// ClipStorage - interface for the candidate clip catalog
type ClipStorage interface {
	SaveClip(ctx context.Context, clip *models.CandidateClip) error
	ListCandidateClips(ctx context.Context, propertyID string) ([]*models.CandidateClip, error)
	DeleteClip(ctx context.Context, clipID string) error
}

// TemplateStorage - interface for template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, tmpl *models.StoredTemplate) error
	GetTemplate(ctx context.Context, templateID string) (*models.StoredTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.StoredTemplate, error)
}

// StorageManager - interface for the storage layer
type StorageManager interface {
	JobStorage() JobStorage
	ClipStorage() ClipStorage
	TemplateStorage() TemplateStorage
	DB() interface{}
	Close() error
}
