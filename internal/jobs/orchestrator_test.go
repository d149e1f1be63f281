package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

func TestRun_CompletesJob(t *testing.T) {
	h := newHarness(t, nil)
	jobID := h.submit(t, "teaser", "casa")

	require.NoError(t, h.orch.Run(context.Background(), jobID, ""))

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, filepath.Join(h.publishRoot, "casa", jobID+".mp4"), job.OutputRef)
	assert.Equal(t, filepath.Join(h.publishRoot, "casa", jobID+".jpg"), job.ThumbnailRef)
	assert.Equal(t, 0, job.RetryCount)
	assert.Empty(t, job.ErrorReason)
	assert.False(t, job.Degraded)
	assert.Equal(t, "wrk_test", job.WorkerID)
	assert.False(t, job.CompletedAt.IsZero())

	require.Len(t, job.SlotAssignments, 2)
	assert.Equal(t, 0, job.SlotAssignments[0].SlotOrder)
	assert.Equal(t, 1, job.SlotAssignments[1].SlotOrder)
	assert.NotEqual(t, job.SlotAssignments[0].ClipID, job.SlotAssignments[1].ClipID)

	assert.FileExists(t, job.OutputRef)
	assert.Len(t, h.transcoder.CallsOf("drawtext"), 1)
	assert.True(t, h.workspaceEmpty(t), "workspace is removed on success")
}

func TestRun_MissingTemplateFails(t *testing.T) {
	h := newHarness(t, nil)
	jobID := h.submit(t, "nope", "casa")

	err := h.orch.Run(context.Background(), jobID, "")
	assert.ErrorIs(t, err, models.ErrTemplateNotFound)

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.StageMatching, job.Stage)
	assert.Contains(t, job.ErrorReason, "template not found")
	assert.Equal(t, 0, job.RetryCount)
	assert.True(t, h.workspaceEmpty(t))
}

func TestRun_NoCandidatesFails(t *testing.T) {
	h := newHarness(t, nil)
	jobID := h.submit(t, "teaser", "empty-property")

	err := h.orch.Run(context.Background(), jobID, "")
	var noCandidates *models.NoCandidatesError
	require.True(t, errors.As(err, &noCandidates))
	assert.Equal(t, "empty-property", noCandidates.PropertyID)

	assert.Equal(t, models.JobStatusFailed, h.job(t, jobID).Status)
}

func TestRun_AssemblyFailureIsTransient(t *testing.T) {
	h := newHarness(t, nil)
	h.transcoder.Errors["concat"] = errors.New("muxer exploded")
	jobID := h.submit(t, "teaser", "casa")

	err := h.orch.Run(context.Background(), jobID, "")
	require.Error(t, err)

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusProcessing, job.Status, "left for the recovery monitor")
	assert.Equal(t, models.StageAssembling, job.Stage)
	assert.Equal(t, 60, job.Progress)
	assert.Contains(t, job.ErrorReason, "muxer exploded")
	assert.Equal(t, 0, job.RetryCount)
	assert.True(t, h.workspaceEmpty(t), "workspace is removed on failure")
}

func TestRun_ExtractionFailFast(t *testing.T) {
	h := newHarness(t, nil)
	h.transcoder.FailSources["bed.mp4"] = errors.New("corrupt stream")
	jobID := h.submit(t, "teaser", "casa")

	require.Error(t, h.orch.Run(context.Background(), jobID, ""))

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorReason, "corrupt stream")
}

func TestRun_ExtractionSkipSlotDegrades(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = common.ExtractionSkipSlot })
	h.transcoder.FailSources["bed.mp4"] = errors.New("corrupt stream")
	jobID := h.submit(t, "teaser", "casa")

	require.NoError(t, h.orch.Run(context.Background(), jobID, ""))

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.True(t, job.Degraded)
	require.NotEmpty(t, job.DegradedReasons)
	assert.Contains(t, job.DegradedReasons[0], "skipped")
	assert.Len(t, h.transcoder.CallsOf("concat")[0].Segments, 1)
}

func TestRun_StageTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.StageTimeouts[models.StageExtracting] = 50 * time.Millisecond
	})
	h.transcoder.Block = make(chan struct{})
	jobID := h.submit(t, "teaser", "casa")

	err := h.orch.Run(context.Background(), jobID, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, models.StageExtracting, job.Stage)
	assert.Contains(t, job.ErrorReason, "timed out")
}

func TestRun_SkipsUnclaimableJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	assert.NoError(t, h.orch.Run(ctx, "job_missing", ""))

	jobID := h.submit(t, "teaser", "casa")
	job := h.job(t, jobID)
	ok, err := h.jobs.UpdateJob(ctx, jobID, job.Version, models.JobPatch{Status: models.Ptr(models.JobStatusProcessing)})
	require.NoError(t, err)
	require.True(t, ok)

	assert.NoError(t, h.orch.Run(ctx, jobID, ""))
	assert.Empty(t, h.transcoder.Calls(), "a job already processing is not run twice")
}

func TestRun_StopsWhenOwnershipLost(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HeartbeatInterval = 20 * time.Millisecond })
	h.transcoder.Block = make(chan struct{})
	jobID := h.submit(t, "teaser", "casa")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx, jobID, "msg-1") }()

	require.Eventually(t, func() bool {
		return h.job(t, jobID).Stage == models.StageExtracting
	}, 5*time.Second, 10*time.Millisecond)

	// Reclaim the job the way the recovery monitor does; retry if a heartbeat lands in between
	require.Eventually(t, func() bool {
		job := h.job(t, jobID)
		ok, err := h.jobs.UpdateJob(ctx, jobID, job.Version, models.JobPatch{
			Status:     models.Ptr(models.JobStatusQueued),
			Stage:      models.Ptr(models.StageNone),
			Progress:   models.Ptr(0),
			RetryCount: models.Ptr(1),
		})
		return err == nil && ok
	}, 5*time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after losing ownership")
	}

	job := h.job(t, jobID)
	assert.Equal(t, models.JobStatusQueued, job.Status, "worker must not overwrite the reclaimed job")
	assert.Equal(t, 1, job.RetryCount)
	assert.Empty(t, job.OutputRef)
	assert.True(t, h.workspaceEmpty(t))
}

func TestRun_HeartbeatRefreshesJob(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HeartbeatInterval = 20 * time.Millisecond })
	h.transcoder.Block = make(chan struct{})
	jobID := h.submit(t, "teaser", "casa")

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(context.Background(), jobID, "msg-1") }()

	require.Eventually(t, func() bool {
		return h.job(t, jobID).Stage == models.StageExtracting
	}, 5*time.Second, 10*time.Millisecond)
	first := h.job(t, jobID)

	require.Eventually(t, func() bool {
		return h.job(t, jobID).Version > first.Version+1
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, h.job(t, jobID).UpdatedAt.After(first.UpdatedAt))

	close(h.transcoder.Block)
	require.NoError(t, <-done)
	assert.Equal(t, models.JobStatusCompleted, h.job(t, jobID).Status)

	h.queue.mu.Lock()
	assert.Positive(t, h.queue.extended, "heartbeat extends message visibility")
	h.queue.mu.Unlock()
}

func TestIsFatal(t *testing.T) {
	assert.True(t, isFatal(&models.MalformedTemplateError{Reason: "x"}))
	assert.True(t, isFatal(&models.SegmentExtractionError{Err: errors.New("x")}))
	assert.False(t, isFatal(&models.SegmentExtractionError{Err: context.DeadlineExceeded}))
	assert.False(t, isFatal(&models.AssemblyError{Op: "concat", Err: errors.New("x")}))
	assert.False(t, isFatal(&models.PublishError{Key: "k", Err: errors.New("x")}))
}

func TestFallbackReasons(t *testing.T) {
	reasons := fallbackReasons([]models.SlotAssignment{
		{SlotOrder: 0, ClipID: "a"},
		{SlotOrder: 1, ClipID: "a", Fallback: true},
	})
	assert.Equal(t, []string{"slot 1 reuses clip a"}, reasons)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	h := newHarness(t, nil)
	jobID := h.submit(t, "teaser", "casa")

	require.NoError(t, h.orch.Run(context.Background(), jobID, ""))

	assert.Eventually(t, func() bool {
		return h.events.count(interfaces.EventJobCompleted) == 1 &&
			h.events.count(interfaces.EventJobStageChanged) == len(models.Stages) &&
			h.events.count(interfaces.EventJobSubmitted) == 1 &&
			h.events.count(interfaces.EventJobStarted) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, h.events.count(interfaces.EventJobFailed))

	done, ok := h.events.last(interfaces.EventJobCompleted)
	require.True(t, ok)
	assert.Equal(t, jobID, done.JobID)
	assert.Equal(t, h.job(t, jobID).OutputRef, done.OutputRef)
	assert.Equal(t, 100, done.Progress)
}

func TestRun_PublishesFailureEvents(t *testing.T) {
	t.Run("permanent", func(t *testing.T) {
		h := newHarness(t, nil)
		jobID := h.submit(t, "teaser", "empty-property")
		require.Error(t, h.orch.Run(context.Background(), jobID, ""))

		assert.Eventually(t, func() bool {
			return h.events.count(interfaces.EventJobFailed) == 1
		}, time.Second, 10*time.Millisecond)
		ev, _ := h.events.last(interfaces.EventJobFailed)
		assert.Equal(t, models.JobStatusFailed, ev.Status)
		assert.Contains(t, ev.Reason, "empty-property")
	})

	t.Run("transient", func(t *testing.T) {
		h := newHarness(t, nil)
		h.transcoder.Errors["concat"] = errors.New("muxer exploded")
		jobID := h.submit(t, "teaser", "casa")
		require.Error(t, h.orch.Run(context.Background(), jobID, ""))

		assert.Eventually(t, func() bool {
			return h.events.count(interfaces.EventJobFailed) == 1
		}, time.Second, 10*time.Millisecond)
		ev, _ := h.events.last(interfaces.EventJobFailed)
		assert.Equal(t, models.JobStatusProcessing, ev.Status, "still owned by recovery")
		assert.Zero(t, h.events.count(interfaces.EventJobCompleted))
	})
}

func TestHandleMessage_DropsSupersededAttempt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	jobID := h.submit(t, "teaser", "casa")

	// As left by a recovery requeue: still queued, one retry spent
	job := h.job(t, jobID)
	ok, err := h.jobs.UpdateJob(ctx, jobID, job.Version, models.JobPatch{RetryCount: models.Ptr(1)})
	require.NoError(t, err)
	require.True(t, ok)

	stale := &models.QueueMessage{ID: "msg-0", JobID: jobID, Type: models.JobTypeGenerateVideo, Attempt: 0}
	require.NoError(t, h.orch.HandleMessage(ctx, stale))
	assert.Equal(t, models.JobStatusQueued, h.job(t, jobID).Status, "stale message leaves the job alone")

	current := &models.QueueMessage{ID: "msg-1", JobID: jobID, Type: models.JobTypeGenerateVideo, Attempt: 1}
	require.NoError(t, h.orch.HandleMessage(ctx, current))

	job = h.job(t, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RetryCount)
}
