package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger.
// Every mutation after creation goes through UpdateJob, a compare-and-set on Version.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (s *JobStorage) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.Version == 0 {
		job.Version = 1
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("job %s already exists: %w", job.ID, err)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateJob applies patch only if the stored version still equals expectedVersion and
// the job is not terminal. Returns false (and no error) when the condition does not hold,
// including when a concurrent transaction committed first.
func (s *JobStorage) UpdateJob(ctx context.Context, jobID string, expectedVersion int64, patch models.JobPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	store := s.db.Store()
	applied := false

	err := store.Badger().Update(func(tx *badger.Txn) error {
		var job models.GenerationJob
		if err := store.TxGet(tx, jobID, &job); err != nil {
			return err
		}
		if job.Version != expectedVersion || job.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		patch.Apply(&job, now)
		job.Version++
		job.UpdatedAt = now

		if err := store.TxUpdate(tx, jobID, &job); err != nil {
			return err
		}
		applied = true
		return nil
	})

	switch {
	case err == nil:
		return applied, nil
	case errors.Is(err, badger.ErrConflict):
		s.logger.Debug().Str("job_id", jobID).Int64("expected_version", expectedVersion).Msg("Conditional job update lost to a concurrent writer")
		return false, nil
	case errors.Is(err, badgerhold.ErrNotFound):
		return false, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	default:
		return false, fmt.Errorf("failed to update job: %w", err)
	}
}

// ListStuckJobs finds processing jobs by index and filters staleness in memory
func (s *JobStorage) ListStuckJobs(ctx context.Context, now time.Time, threshold, lookback time.Duration) ([]*models.GenerationJob, error) {
	var jobs []models.GenerationJob
	query := badgerhold.Where("Status").Eq(models.JobStatusProcessing)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to query processing jobs: %w", err)
	}

	staleBefore := now.Add(-threshold)
	createdAfter := now.Add(-lookback)

	result := make([]*models.GenerationJob, 0)
	for i := range jobs {
		job := &jobs[i]
		if !job.UpdatedAt.Before(staleBefore) {
			continue
		}
		if lookback > 0 && job.CreatedAt.Before(createdAfter) {
			continue
		}
		result = append(result, job)
	}

	// Oldest first so the longest-stalled jobs are reclaimed first
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.GenerationJob, error) {
	var query *badgerhold.Query
	if opts != nil && opts.Status != "" {
		query = badgerhold.Where("Status").Eq(opts.Status)
	}

	var jobs []models.GenerationJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	// Newest first
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if opts != nil && opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}

	result := make([]*models.GenerationJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.GenerationJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.GenerationJob{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}
