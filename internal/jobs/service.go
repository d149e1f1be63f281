package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/events"
)

// Service is the job trigger: it creates job records and enqueues them.
// Callers poll GetStatus; everything else happens on the workers.
type Service struct {
	jobStorage interfaces.JobStorage
	queueMgr   interfaces.QueueManager
	maxRetries int
	events     interfaces.EventService
	logger     arbor.ILogger
}

var _ interfaces.JobService = (*Service)(nil)

// NewService creates a new job trigger service
func NewService(
	jobStorage interfaces.JobStorage,
	queueMgr interfaces.QueueManager,
	maxRetries int,
	logger arbor.ILogger,
) *Service {
	return &Service{
		jobStorage: jobStorage,
		queueMgr:   queueMgr,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// SetEventService publishes job_submitted events on svc
func (s *Service) SetEventService(svc interfaces.EventService) {
	s.events = svc
}

// Submit creates a queued job for templateID and propertyID and enqueues it
func (s *Service) Submit(ctx context.Context, templateID, propertyID string) (string, error) {
	if templateID == "" {
		return "", errors.New("template id is required")
	}
	if propertyID == "" {
		return "", errors.New("property id is required")
	}

	job := &models.GenerationJob{
		ID:          common.NewJobID(),
		Status:      models.JobStatusQueued,
		MaxRetries:  s.maxRetries,
		TemplateRef: templateID,
		PropertyID:  propertyID,
	}
	if err := s.jobStorage.CreateJob(ctx, job); err != nil {
		return "", err
	}

	msg := models.QueueMessage{
		JobID:   job.ID,
		Type:    models.JobTypeGenerateVideo,
		Attempt: job.RetryCount,
	}
	if err := s.queueMgr.Enqueue(ctx, msg); err != nil {
		// Nothing will ever pick up a queued job without a message
		reason := fmt.Sprintf("failed to enqueue: %v", err)
		if _, uerr := s.jobStorage.UpdateJob(ctx, job.ID, job.Version, models.JobPatch{
			Status:      models.Ptr(models.JobStatusFailed),
			ErrorReason: &reason,
		}); uerr != nil {
			s.logger.Warn().Err(uerr).Str("job_id", job.ID).Msg("Failed to mark unqueued job failed")
		}
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("template", templateID).
		Str("property_id", propertyID).
		Msg("Job submitted")
	events.PublishJobEvent(ctx, s.events, interfaces.EventJobSubmitted, models.JobEvent{
		JobID:  job.ID,
		Status: models.JobStatusQueued,
		At:     time.Now(),
	}, s.logger)

	return job.ID, nil
}

// GetStatus returns the caller-facing view of a job
func (s *Service) GetStatus(ctx context.Context, jobID string) (*models.JobStatusView, error) {
	job, err := s.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.StatusView(), nil
}

// ListJobs returns recent jobs, newest first
func (s *Service) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.JobStatusView, error) {
	jobs, err := s.jobStorage.ListJobs(ctx, &interfaces.JobListOptions{Status: status, Limit: limit})
	if err != nil {
		return nil, err
	}
	views := make([]*models.JobStatusView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.StatusView())
	}
	return views, nil
}
