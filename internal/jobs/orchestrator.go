// -----------------------------------------------------------------------
// Job Orchestrator - drives one generation job through its stages
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/assembler"
	"github.com/ternarybob/stayreel/internal/services/events"
	"github.com/ternarybob/stayreel/internal/services/extractor"
	"github.com/ternarybob/stayreel/internal/services/matcher"
	"github.com/ternarybob/stayreel/internal/templates"
)

// Progress written while extracting moves from the stage entry value up to this
const extractingProgressCeiling = 55

// Dependencies groups the collaborators the orchestrator calls into
type Dependencies struct {
	Jobs        interfaces.JobStorage
	Clips       interfaces.ClipStorage
	Templates   interfaces.TemplateStorage
	Queue       interfaces.QueueManager // Optional: extends message visibility on heartbeat
	ObjectStore interfaces.ObjectStore
	Transcoder  interfaces.Transcoder
	Matcher     *matcher.Matcher
	Extractor   *extractor.Extractor
	Assembler   *assembler.Assembler
	Events      interfaces.EventService // Optional: receives job lifecycle events
}

// Orchestrator runs generation jobs claimed from the queue
type Orchestrator struct {
	deps   Dependencies
	config Config
	logger arbor.ILogger
}

// NewOrchestrator creates the orchestrator
func NewOrchestrator(deps Dependencies, config Config, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{deps: deps, config: config, logger: logger}
}

// HandleMessage is the queue handler for generate_video messages
func (o *Orchestrator) HandleMessage(ctx context.Context, msg *models.QueueMessage) error {
	o.logger.Debug().
		Str("job_id", msg.JobID).
		Str("message_id", msg.ID).
		Int("attempt", msg.Attempt).
		Msg("Generation message received")
	return o.run(ctx, msg.JobID, msg.ID, msg.Attempt)
}

// Run claims a queued job and drives it to completed, failed, or a transient
// failure left in processing for the recovery monitor.
func (o *Orchestrator) Run(ctx context.Context, jobID, messageID string) error {
	return o.run(ctx, jobID, messageID, -1)
}

// run is Run for a message enqueued at attempt. A message from an earlier attempt
// than the job's retry count was superseded by a requeue and is dropped. attempt < 0 skips the check.
func (o *Orchestrator) run(ctx context.Context, jobID, messageID string, attempt int) error {
	job, err := o.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			o.logger.Warn().Str("job_id", jobID).Msg("Message references an unknown job, dropping")
			return nil
		}
		return err
	}
	if job.Status != models.JobStatusQueued {
		o.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Job is not claimable, dropping message")
		return nil
	}
	if attempt >= 0 && attempt < job.RetryCount {
		o.logger.Debug().
			Str("job_id", jobID).
			Int("attempt", attempt).
			Int("retry_count", job.RetryCount).
			Msg("Message superseded by a requeue, dropping")
		return nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Losing ownership at any point cancels the job's in-flight work
	tr := newTracker(o.deps.Jobs, job, cancel)
	err = tr.update(jobCtx, models.JobPatch{
		Status:   models.Ptr(models.JobStatusProcessing),
		Stage:    models.Ptr(models.StageNone),
		WorkerID: models.Ptr(o.config.WorkerID),
	})
	if err != nil {
		if errors.Is(err, models.ErrOwnershipLost) {
			o.logger.Debug().Str("job_id", jobID).Msg("Job claimed by another worker")
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	jobLogger := o.logger.WithCorrelationId(job.ID)
	jobLogger.Info().
		Str("job_id", job.ID).
		Str("template", job.TemplateRef).
		Str("property_id", job.PropertyID).
		Int("retry_count", job.RetryCount).
		Msg("Job claimed")
	o.publish(ctx, interfaces.EventJobStarted, models.JobEvent{
		JobID:      job.ID,
		Status:     models.JobStatusProcessing,
		RetryCount: job.RetryCount,
		WorkerID:   o.config.WorkerID,
	})

	workDir := filepath.Join(o.config.WorkspaceRoot, fmt.Sprintf("%s_%d", job.ID, job.RetryCount))
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			jobLogger.Warn().Err(err).Str("dir", workDir).Msg("Failed to remove job workspace")
		}
	}()

	stopHeartbeat := o.startHeartbeat(jobCtx, tr, messageID, jobLogger)
	start := time.Now()
	runErr := o.execute(jobCtx, tr, job, workDir, jobLogger)
	stopHeartbeat()

	return o.finish(ctx, tr, runErr, time.Since(start), jobLogger)
}

// execute runs the stages in order. Each stage records its entry before starting.
func (o *Orchestrator) execute(ctx context.Context, tr *tracker, job *models.GenerationJob, workDir string, logger arbor.ILogger) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create job workspace: %w", err)
	}

	var (
		tmpl        *models.StoredTemplate
		assignments []models.SlotAssignment
		extracted   *extractor.Result
		assembly    *assembler.Assembly
		outputRef   string
		thumbRef    string
	)

	err := o.stage(ctx, tr, models.StageMatching, models.JobPatch{}, logger, func(sctx context.Context) error {
		var err error
		tmpl, assignments, err = o.match(sctx, job)
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, tr, models.StageExtracting, models.JobPatch{
		SlotAssignments: assignments,
		DegradedReasons: fallbackReasons(assignments),
	}, logger, func(sctx context.Context) error {
		var err error
		extracted, err = o.deps.Extractor.ExtractAll(sctx, workDir, &tmpl.Spec, assignments, extractor.Options{
			Policy:  o.config.Policy,
			Profile: outputProfile(tmpl),
			Progress: func(done, total int) {
				progress := models.StageProgress[models.StageExtracting] +
					(extractingProgressCeiling-models.StageProgress[models.StageExtracting])*done/total
				if err := tr.update(ctx, models.JobPatch{Progress: &progress}); err != nil {
					logger.Debug().Err(err).Int("progress", progress).Msg("Progress update failed")
				}
			},
		})
		return err
	})
	if err != nil {
		return err
	}

	var skipped []string
	for _, f := range extracted.Failures {
		skipped = append(skipped, fmt.Sprintf("slot %d skipped: %v", f.SlotOrder, f.Err))
	}
	err = o.stage(ctx, tr, models.StageAssembling, models.JobPatch{DegradedReasons: skipped}, logger, func(sctx context.Context) error {
		var err error
		assembly, err = o.deps.Assembler.Assemble(sctx, workDir, extracted.Segments, tmpl.Overlays, outputProfile(tmpl))
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, tr, models.StagePublishing, models.JobPatch{DegradedReasons: assembly.DegradedReasons}, logger, func(sctx context.Context) error {
		var err error
		outputRef, err = o.deps.ObjectStore.Publish(sctx, assembly.Path, objectKey(job, ".mp4"))
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, tr, models.StageFinalizing, models.JobPatch{OutputRef: &outputRef}, logger, func(sctx context.Context) error {
		thumbRef = o.thumbnail(sctx, job, workDir, assembly, logger)
		return nil
	})
	if err != nil {
		return err
	}

	err = tr.update(ctx, models.JobPatch{
		Status:       models.Ptr(models.JobStatusCompleted),
		Progress:     models.Ptr(100),
		OutputRef:    &outputRef,
		ThumbnailRef: &thumbRef,
		ErrorReason:  models.Ptr(""),
	})
	if err != nil {
		return err
	}
	o.publish(ctx, interfaces.EventJobCompleted, models.JobEvent{
		JobID:      job.ID,
		Status:     models.JobStatusCompleted,
		Stage:      models.StageFinalizing,
		Progress:   100,
		RetryCount: job.RetryCount,
		OutputRef:  outputRef,
	})
	return nil
}

// stage records entry into stage (plus any extra patch fields) and runs fn under the stage timeout
func (o *Orchestrator) stage(ctx context.Context, tr *tracker, stage models.JobStage, patch models.JobPatch, logger arbor.ILogger, fn func(context.Context) error) error {
	progress := models.StageProgress[stage]
	patch.Stage = &stage
	patch.Progress = &progress
	if err := tr.update(ctx, patch); err != nil {
		return err
	}
	o.publish(ctx, interfaces.EventJobStageChanged, models.JobEvent{
		JobID:    tr.jobID,
		Status:   models.JobStatusProcessing,
		Stage:    stage,
		Progress: progress,
	})

	timeout := o.config.stageTimeout(stage)
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug().Str("stage", string(stage)).Dur("timeout", timeout).Msg("Stage started")
	start := time.Now()

	err := fn(sctx)
	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("stage %s timed out after %s: %w", stage, timeout, err)
		}
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	logger.Debug().Str("stage", string(stage)).Dur("elapsed", time.Since(start)).Msg("Stage finished")
	return nil
}

func (o *Orchestrator) match(ctx context.Context, job *models.GenerationJob) (*models.StoredTemplate, []models.SlotAssignment, error) {
	tmpl, err := o.deps.Templates.GetTemplate(ctx, job.TemplateRef)
	if err != nil {
		return nil, nil, err
	}
	if err := templates.Validate(&tmpl.Spec); err != nil {
		return nil, nil, err
	}

	clips, err := o.deps.Clips.ListCandidateClips(ctx, job.PropertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list candidate clips: %w", err)
	}
	if len(clips) == 0 {
		return nil, nil, &models.NoCandidatesError{PropertyID: job.PropertyID}
	}

	assignments, err := o.deps.Matcher.Match(&tmpl.Spec, clips)
	if err != nil {
		return nil, nil, err
	}
	return tmpl, assignments, nil
}

// thumbnail grabs and publishes a poster frame. Failure only costs the thumbnail.
func (o *Orchestrator) thumbnail(ctx context.Context, job *models.GenerationJob, workDir string, assembly *assembler.Assembly, logger arbor.ILogger) string {
	local := filepath.Join(workDir, "thumbnail.jpg")
	at := math.Min(1, assembly.Duration/2)

	if err := o.deps.Transcoder.Snapshot(ctx, assembly.Path, local, at); err != nil {
		logger.Warn().Err(err).Msg("Thumbnail capture failed")
		return ""
	}
	ref, err := o.deps.ObjectStore.Publish(ctx, local, objectKey(job, ".jpg"))
	if err != nil {
		logger.Warn().Err(err).Msg("Thumbnail publish failed")
		return ""
	}
	return ref
}

// finish records the outcome of a run. Permanent failures fail the job; anything else
// stays processing with the reason recorded, for the recovery monitor to reclaim.
func (o *Orchestrator) finish(ctx context.Context, tr *tracker, runErr error, elapsed time.Duration, logger arbor.ILogger) error {
	if runErr == nil {
		logger.Info().Dur("elapsed", elapsed).Msg("Job completed")
		return nil
	}

	if errors.Is(runErr, models.ErrOwnershipLost) || tr.isLost() {
		logger.Warn().Err(runErr).Msg("Job ownership lost, abandoning run")
		return nil
	}

	if ctx.Err() != nil {
		logger.Warn().Err(runErr).Msg("Job interrupted, leaving it for recovery")
		return runErr
	}

	reason := runErr.Error()
	if isFatal(runErr) {
		if err := tr.update(ctx, models.JobPatch{
			Status:      models.Ptr(models.JobStatusFailed),
			ErrorReason: &reason,
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to record job failure")
		}
		logger.Error().Err(runErr).Dur("elapsed", elapsed).Msg("Job failed")
		o.publish(ctx, interfaces.EventJobFailed, models.JobEvent{JobID: tr.jobID, Status: models.JobStatusFailed, Reason: reason})
		return runErr
	}

	if err := tr.update(ctx, models.JobPatch{ErrorReason: &reason}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record transient failure")
	}
	logger.Warn().Err(runErr).Dur("elapsed", elapsed).Msg("Job hit a transient failure, leaving it for recovery")
	o.publish(ctx, interfaces.EventJobFailed, models.JobEvent{JobID: tr.jobID, Status: models.JobStatusProcessing, Reason: reason})
	return runErr
}

func (o *Orchestrator) publish(ctx context.Context, eventType interfaces.EventType, ev models.JobEvent) {
	ev.At = time.Now()
	events.PublishJobEvent(ctx, o.deps.Events, eventType, ev, o.logger)
}

// startHeartbeat refreshes the job's UpdatedAt (and the message visibility) until stopped
func (o *Orchestrator) startHeartbeat(ctx context.Context, tr *tracker, messageID string, logger arbor.ILogger) func() {
	interval := o.config.HeartbeatInterval
	if interval <= 0 {
		return func() {}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	common.SafeGo(logger, "job heartbeat", func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := tr.heartbeat(hbCtx); err != nil {
					if errors.Is(err, models.ErrOwnershipLost) {
						logger.Warn().Msg("Heartbeat found the job reclaimed")
						return
					}
					if hbCtx.Err() != nil {
						return
					}
					logger.Warn().Err(err).Msg("Heartbeat failed")
				}
				if o.deps.Queue != nil && messageID != "" {
					if err := o.deps.Queue.Extend(hbCtx, messageID, o.config.MessageExtension); err != nil {
						logger.Debug().Err(err).Msg("Failed to extend message visibility")
					}
				}
			}
		}
	})

	return func() {
		cancel()
		<-done
	}
}

// isFatal reports whether a run error should fail the job outright.
// Stage timeouts are transient even when they surface through a permanent-looking wrapper.
func isFatal(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var extractErr *models.SegmentExtractionError
	return models.IsPermanent(err) || errors.As(err, &extractErr)
}

func fallbackReasons(assignments []models.SlotAssignment) []string {
	var reasons []string
	for _, a := range assignments {
		if a.Fallback {
			reasons = append(reasons, fmt.Sprintf("slot %d reuses clip %s", a.SlotOrder, a.ClipID))
		}
	}
	return reasons
}

func outputProfile(tmpl *models.StoredTemplate) models.OutputProfile {
	p := tmpl.Spec.Output
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return models.DefaultOutputProfile()
	}
	return p
}

func objectKey(job *models.GenerationJob, ext string) string {
	return filepath.ToSlash(filepath.Join(job.PropertyID, job.ID+ext))
}
