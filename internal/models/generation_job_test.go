package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobPatch_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil fields are untouched", func(t *testing.T) {
		job := &GenerationJob{Status: JobStatusProcessing, Stage: StageAssembling, Progress: 60, ErrorReason: "x"}
		JobPatch{}.Apply(job, now)
		assert.Equal(t, JobStatusProcessing, job.Status)
		assert.Equal(t, StageAssembling, job.Stage)
		assert.Equal(t, 60, job.Progress)
		assert.Equal(t, "x", job.ErrorReason)
		assert.True(t, job.CompletedAt.IsZero())
	})

	t.Run("progress never moves backwards", func(t *testing.T) {
		job := &GenerationJob{Status: JobStatusProcessing, Progress: 60}
		JobPatch{Progress: Ptr(30)}.Apply(job, now)
		assert.Equal(t, 60, job.Progress)

		JobPatch{Progress: Ptr(85)}.Apply(job, now)
		assert.Equal(t, 85, job.Progress)
	})

	t.Run("requeue resets progress", func(t *testing.T) {
		job := &GenerationJob{Status: JobStatusProcessing, Stage: StageAssembling, Progress: 60}
		JobPatch{
			Status:   Ptr(JobStatusQueued),
			Stage:    Ptr(StageNone),
			Progress: Ptr(0),
		}.Apply(job, now)
		assert.Equal(t, JobStatusQueued, job.Status)
		assert.Equal(t, StageNone, job.Stage)
		assert.Equal(t, 0, job.Progress)
		assert.True(t, job.CompletedAt.IsZero())
	})

	t.Run("terminal status stamps completion", func(t *testing.T) {
		job := &GenerationJob{Status: JobStatusProcessing}
		JobPatch{Status: Ptr(JobStatusFailed), ErrorReason: Ptr("boom")}.Apply(job, now)
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, "boom", job.ErrorReason)
		assert.Equal(t, now, job.CompletedAt)
	})

	t.Run("degraded reasons append", func(t *testing.T) {
		job := &GenerationJob{DegradedReasons: []string{"first"}}
		JobPatch{DegradedReasons: []string{"second"}}.Apply(job, now)
		assert.True(t, job.Degraded)
		assert.Equal(t, []string{"first", "second"}, job.DegradedReasons)
	})

	t.Run("slot assignments replace", func(t *testing.T) {
		job := &GenerationJob{SlotAssignments: []SlotAssignment{{SlotOrder: 1}}}
		JobPatch{SlotAssignments: []SlotAssignment{{SlotOrder: 1}, {SlotOrder: 2}}}.Apply(job, now)
		assert.Len(t, job.SlotAssignments, 2)
	})
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestStageProgress_Increases(t *testing.T) {
	last := 0
	for _, stage := range Stages {
		p, ok := StageProgress[stage]
		assert.True(t, ok, "stage %s has no progress value", stage)
		assert.Greater(t, p, last)
		last = p
	}
}

func TestStatusView(t *testing.T) {
	updated := time.Now()
	job := &GenerationJob{
		ID:           "job_1",
		Status:       JobStatusCompleted,
		Stage:        StageFinalizing,
		Progress:     100,
		RetryCount:   1,
		OutputRef:    "https://cdn/out.mp4",
		ThumbnailRef: "https://cdn/out.jpg",
		Degraded:     true,
		UpdatedAt:    updated,
	}

	view := job.StatusView()
	assert.Equal(t, "job_1", view.JobID)
	assert.Equal(t, JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
	assert.Equal(t, 1, view.RetryCount)
	assert.Equal(t, "https://cdn/out.mp4", view.OutputRef)
	assert.Equal(t, "https://cdn/out.jpg", view.Thumbnail)
	assert.True(t, view.Degraded)
	assert.Equal(t, updated, view.UpdatedAt)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"malformed template", &MalformedTemplateError{TemplateID: "t", Reason: "no slots"}, true},
		{"no candidates", &NoCandidatesError{PropertyID: "p"}, true},
		{"template missing", fmt.Errorf("load: %w", ErrTemplateNotFound), true},
		{"retries exceeded", &StuckJobExceededRetriesError{JobID: "j", RetryCount: 3, MaxRetries: 2}, true},
		{"wrapped permanent", fmt.Errorf("stage matching: %w", &NoCandidatesError{PropertyID: "p"}), true},
		{"assembly", &AssemblyError{Op: "concat", Err: errors.New("exit 1")}, false},
		{"publish", &PublishError{Key: "k", Err: errors.New("refused")}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "malformed template: empty", (&MalformedTemplateError{Reason: "empty"}).Error())
	assert.Equal(t, "malformed template t1: empty", (&MalformedTemplateError{TemplateID: "t1", Reason: "empty"}).Error())
	assert.Equal(t, `no candidate clips for property "casa"`, (&NoCandidatesError{PropertyID: "casa"}).Error())

	inner := errors.New("exit status 1")
	segErr := &SegmentExtractionError{SlotOrder: 2, ClipID: "c1", Err: inner}
	assert.ErrorIs(t, segErr, inner)
	assert.Contains(t, segErr.Error(), "slot 2")
}
