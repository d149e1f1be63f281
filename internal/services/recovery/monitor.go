// -----------------------------------------------------------------------
// Recovery Monitor - reclaims generation jobs whose worker went silent
// -----------------------------------------------------------------------

package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/events"
	"golang.org/x/time/rate"
)

// TaskName is the scheduler task the monitor registers
const TaskName = "recovery_sweep"

// Config holds the monitor settings
type Config struct {
	Schedule              string
	StuckThreshold        time.Duration
	LookbackWindow        time.Duration
	MaxResubmitsPerSecond float64
	RecentEvents          int
}

// ConfigFromCommon converts the [recovery] config section
func ConfigFromCommon(c common.RecoveryConfig) Config {
	return Config{
		Schedule:              c.Schedule,
		StuckThreshold:        common.ParseDurationOr(c.StuckThreshold, 90*time.Second),
		LookbackWindow:        common.ParseDurationOr(c.LookbackWindow, 24*time.Hour),
		MaxResubmitsPerSecond: c.MaxResubmitsPerSecond,
		RecentEvents:          c.RecentEvents,
	}
}

// Monitor periodically finds processing jobs with a stale UpdatedAt and either
// requeues them or, once the retry budget is spent, fails them.
// It never runs pipeline stages itself.
type Monitor struct {
	jobStorage interfaces.JobStorage
	queueMgr   interfaces.QueueManager
	scheduler  interfaces.TaskScheduler
	config     Config
	limiter    *rate.Limiter
	bus        interfaces.EventService
	logger     arbor.ILogger
	now        func() time.Time

	mu     sync.Mutex
	stats  models.RecoveryStats
	events []models.RecoveryEvent // Ring buffer of the most recent events
	next   int
}

var _ interfaces.RecoveryMonitor = (*Monitor)(nil)

// NewMonitor creates the monitor. It does nothing until Start.
func NewMonitor(
	jobStorage interfaces.JobStorage,
	queueMgr interfaces.QueueManager,
	sched interfaces.TaskScheduler,
	config Config,
	logger arbor.ILogger,
) *Monitor {
	if config.Schedule == "" {
		config.Schedule = "@every 30s"
	}
	if config.StuckThreshold <= 0 {
		config.StuckThreshold = 90 * time.Second
	}
	if config.RecentEvents <= 0 {
		config.RecentEvents = 50
	}

	limit := rate.Inf
	if config.MaxResubmitsPerSecond > 0 {
		limit = rate.Limit(config.MaxResubmitsPerSecond)
	}

	return &Monitor{
		jobStorage: jobStorage,
		queueMgr:   queueMgr,
		scheduler:  sched,
		config:     config,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		now:        time.Now,
		events:     make([]models.RecoveryEvent, 0, config.RecentEvents),
	}
}

// SetEventService publishes job_requeued and job_abandoned events on svc
func (m *Monitor) SetEventService(svc interfaces.EventService) {
	m.bus = svc
}

// Start schedules the sweep
func (m *Monitor) Start() error {
	if _, err := m.scheduler.GetTaskStatus(TaskName); err == nil {
		return m.scheduler.EnableTask(TaskName)
	}

	err := m.scheduler.RegisterTask(TaskName, m.config.Schedule, "Reclaim stalled generation jobs", func(ctx context.Context) error {
		_, err := m.Sweep(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}

	m.logger.Info().
		Str("schedule", m.config.Schedule).
		Dur("stuck_threshold", m.config.StuckThreshold).
		Dur("lookback", m.config.LookbackWindow).
		Msg("Recovery monitor started")
	return nil
}

// Stop unschedules the sweep. A sweep in progress finishes.
func (m *Monitor) Stop() {
	if err := m.scheduler.DisableTask(TaskName); err != nil {
		m.logger.Debug().Err(err).Msg("Recovery monitor was not scheduled")
		return
	}
	m.logger.Info().Msg("Recovery monitor stopped")
}

// Sweep runs one detection pass. Safe to call directly; every reclaim is a conditional
// update, so a concurrent sweep or a worker finishing at the same moment never double-acts.
func (m *Monitor) Sweep(ctx context.Context) (*models.SweepResult, error) {
	start := m.now()
	result := &models.SweepResult{StartedAt: start}

	stuck, err := m.jobStorage.ListStuckJobs(ctx, start, m.config.StuckThreshold, m.config.LookbackWindow)
	if err != nil {
		err = fmt.Errorf("failed to list stuck jobs: %w", err)
		m.record(result, err)
		return nil, err
	}
	result.Scanned = len(stuck)

	var errs []error
	for _, job := range stuck {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		event, err := m.reclaim(ctx, job, start)
		if err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reclaim stuck job")
			errs = append(errs, err)
			continue
		}
		if event == nil {
			result.Skipped++
			continue
		}

		result.Events = append(result.Events, *event)
		if event.Action == models.RecoveryRequeued {
			result.Requeued++
		} else {
			result.Abandoned++
		}
	}

	result.Duration = m.now().Sub(start)
	sweepErr := errors.Join(errs...)
	m.record(result, sweepErr)

	if result.Scanned > 0 {
		m.logger.Info().
			Int("scanned", result.Scanned).
			Int("requeued", result.Requeued).
			Int("abandoned", result.Abandoned).
			Int("skipped", result.Skipped).
			Dur("duration", result.Duration).
			Msg("Recovery sweep finished")
	}
	return result, sweepErr
}

// reclaim acts on one stuck job. A nil event with nil error means the conditional
// update lost: the job changed since it was listed, so it is no longer ours to touch.
func (m *Monitor) reclaim(ctx context.Context, job *models.GenerationJob, now time.Time) (*models.RecoveryEvent, error) {
	age := now.Sub(job.UpdatedAt)
	event := &models.RecoveryEvent{
		JobID:      job.ID,
		PriorStage: job.Stage,
		Age:        age,
		At:         now,
	}

	if job.RetryCount >= job.MaxRetries {
		reason := (&models.StuckJobExceededRetriesError{
			JobID:      job.ID,
			RetryCount: job.RetryCount,
			MaxRetries: job.MaxRetries,
		}).Error()
		ok, err := m.jobStorage.UpdateJob(ctx, job.ID, job.Version, models.JobPatch{
			Status:      models.Ptr(models.JobStatusFailed),
			ErrorReason: &reason,
		})
		if err != nil || !ok {
			return nil, err
		}

		event.Action = models.RecoveryAbandoned
		event.RetryCount = job.RetryCount
		m.logger.Warn().
			Str("job_id", job.ID).
			Str("stage", string(job.Stage)).
			Dur("age", age).
			Int("retry_count", job.RetryCount).
			Msg("Stuck job exceeded retry budget, marked failed")
		events.PublishJobEvent(ctx, m.bus, interfaces.EventJobAbandoned, models.JobEvent{
			JobID:      job.ID,
			Status:     models.JobStatusFailed,
			Stage:      job.Stage,
			RetryCount: job.RetryCount,
			Reason:     reason,
			At:         now,
		}, m.logger)
		return event, nil
	}

	retry := job.RetryCount + 1
	reason := fmt.Sprintf("reclaimed after %s without progress in stage %s", age.Round(time.Second), stageName(job.Stage))
	ok, err := m.jobStorage.UpdateJob(ctx, job.ID, job.Version, models.JobPatch{
		Status:      models.Ptr(models.JobStatusQueued),
		Stage:       models.Ptr(models.StageNone),
		Progress:    models.Ptr(0),
		RetryCount:  &retry,
		ErrorReason: &reason,
		WorkerID:    models.Ptr(""),
	})
	if err != nil || !ok {
		return nil, err
	}

	if err := m.resubmit(ctx, job.ID, retry); err != nil {
		// Put the job back so a later sweep tries again; a queued job without a message would sit forever
		if _, rerr := m.jobStorage.UpdateJob(context.WithoutCancel(ctx), job.ID, job.Version+1, models.JobPatch{
			Status:     models.Ptr(models.JobStatusProcessing),
			Stage:      &job.Stage,
			RetryCount: &job.RetryCount,
		}); rerr != nil {
			m.logger.Error().Err(rerr).Str("job_id", job.ID).Msg("Failed to restore job after resubmit failure")
		}
		return nil, fmt.Errorf("failed to resubmit job %s: %w", job.ID, err)
	}

	event.Action = models.RecoveryRequeued
	event.RetryCount = retry
	m.logger.Info().
		Str("job_id", job.ID).
		Str("stage", string(job.Stage)).
		Dur("age", age).
		Int("retry_count", retry).
		Str("last_error", job.ErrorReason).
		Msg("Stuck job requeued")
	events.PublishJobEvent(ctx, m.bus, interfaces.EventJobRequeued, models.JobEvent{
		JobID:      job.ID,
		Status:     models.JobStatusQueued,
		Stage:      job.Stage,
		RetryCount: retry,
		Reason:     reason,
		At:         now,
	}, m.logger)
	return event, nil
}

func (m *Monitor) resubmit(ctx context.Context, jobID string, attempt int) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return m.queueMgr.Enqueue(ctx, models.QueueMessage{
		JobID:   jobID,
		Type:    models.JobTypeGenerateVideo,
		Attempt: attempt,
	})
}

// Stats returns a snapshot of the cumulative counters and recent events, oldest first
func (m *Monitor) Stats() models.RecoveryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.RecentEvents = make([]models.RecoveryEvent, 0, len(m.events))
	if len(m.events) < m.config.RecentEvents {
		stats.RecentEvents = append(stats.RecentEvents, m.events...)
	} else {
		stats.RecentEvents = append(stats.RecentEvents, m.events[m.next:]...)
		stats.RecentEvents = append(stats.RecentEvents, m.events[:m.next]...)
	}
	return stats
}

func (m *Monitor) record(result *models.SweepResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Sweeps++
	m.stats.LastSweepAt = result.StartedAt
	m.stats.LastSweepError = ""
	if err != nil {
		m.stats.LastSweepError = err.Error()
	}
	m.stats.TotalRecoveries += result.Requeued
	m.stats.TotalAbandoned += result.Abandoned

	for _, e := range result.Events {
		if len(m.events) < m.config.RecentEvents {
			m.events = append(m.events, e)
			continue
		}
		m.events[m.next] = e
		m.next = (m.next + 1) % m.config.RecentEvents
	}
}

func stageName(stage models.JobStage) string {
	if stage == models.StageNone {
		return "none"
	}
	return string(stage)
}
