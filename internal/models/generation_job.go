// -----------------------------------------------------------------------
// Generation Job - typed lifecycle record for one video assembly
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus is the coarse lifecycle state of a generation job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further mutation is allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobStage labels the pipeline step a processing job is in
type JobStage string

const (
	StageNone       JobStage = ""
	StageMatching   JobStage = "matching"
	StageExtracting JobStage = "extracting"
	StageAssembling JobStage = "assembling"
	StagePublishing JobStage = "publishing"
	StageFinalizing JobStage = "finalizing"
)

// Stages lists the pipeline stages in execution order
var Stages = []JobStage{StageMatching, StageExtracting, StageAssembling, StagePublishing, StageFinalizing}

// StageProgress is the progress value written on entry to each stage
var StageProgress = map[JobStage]int{
	StageMatching:   10,
	StageExtracting: 30,
	StageAssembling: 60,
	StagePublishing: 85,
	StageFinalizing: 95,
}

// GenerationJob is the persisted record of one video request.
// Version is the optimistic-concurrency token; every successful conditional update bumps it.
type GenerationJob struct {
	ID         string    `json:"id" badgerhold:"key"`
	Version    int64     `json:"version"`
	Status     JobStatus `json:"status" badgerhold:"index"`
	Stage      JobStage  `json:"stage"`
	Progress   int       `json:"progress"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`

	TemplateRef string `json:"template_ref"`
	PropertyID  string `json:"property_id"`

	SlotAssignments []SlotAssignment `json:"slot_assignments,omitempty"`

	OutputRef       string   `json:"output_ref,omitempty"`
	ThumbnailRef    string   `json:"thumbnail_ref,omitempty"`
	ErrorReason     string   `json:"error_reason,omitempty"`
	Degraded        bool     `json:"degraded"`
	DegradedReasons []string `json:"degraded_reasons,omitempty"`
	WorkerID        string   `json:"worker_id,omitempty"` // Worker currently owning the job

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// JobPatch is a typed partial update. Nil fields are left untouched.
type JobPatch struct {
	Status          *JobStatus
	Stage           *JobStage
	Progress        *int
	RetryCount      *int
	SlotAssignments []SlotAssignment
	OutputRef       *string
	ThumbnailRef    *string
	ErrorReason     *string
	DegradedReasons []string // Appended, marks the job degraded
	WorkerID        *string
}

// Apply writes the patch onto job. UpdatedAt and Version are handled by the store.
func (p JobPatch) Apply(job *GenerationJob, now time.Time) {
	if p.Status != nil {
		job.Status = *p.Status
		if p.Status.IsTerminal() {
			job.CompletedAt = now
		}
	}
	if p.Stage != nil {
		job.Stage = *p.Stage
	}
	if p.Progress != nil {
		// Progress only moves forward, except when a job is requeued and restarts
		requeued := p.Status != nil && *p.Status == JobStatusQueued
		if requeued || *p.Progress >= job.Progress {
			job.Progress = *p.Progress
		}
	}
	if p.RetryCount != nil {
		job.RetryCount = *p.RetryCount
	}
	if p.SlotAssignments != nil {
		job.SlotAssignments = p.SlotAssignments
	}
	if p.OutputRef != nil {
		job.OutputRef = *p.OutputRef
	}
	if p.ThumbnailRef != nil {
		job.ThumbnailRef = *p.ThumbnailRef
	}
	if p.ErrorReason != nil {
		job.ErrorReason = *p.ErrorReason
	}
	if len(p.DegradedReasons) > 0 {
		job.Degraded = true
		job.DegradedReasons = append(job.DegradedReasons, p.DegradedReasons...)
	}
	if p.WorkerID != nil {
		job.WorkerID = *p.WorkerID
	}
}

// JobStatusView is what the trigger interface reports to callers
type JobStatusView struct {
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Stage       JobStage  `json:"stage,omitempty"`
	Progress    int       `json:"progress"`
	RetryCount  int       `json:"retry_count"`
	OutputRef   string    `json:"output_ref,omitempty"`
	Thumbnail   string    `json:"thumbnail_ref,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
	Degraded    bool      `json:"degraded"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusView projects the job onto the caller-facing status shape
func (j *GenerationJob) StatusView() *JobStatusView {
	return &JobStatusView{
		JobID:       j.ID,
		Status:      j.Status,
		Stage:       j.Stage,
		Progress:    j.Progress,
		RetryCount:  j.RetryCount,
		OutputRef:   j.OutputRef,
		Thumbnail:   j.ThumbnailRef,
		ErrorReason: j.ErrorReason,
		Degraded:    j.Degraded,
		UpdatedAt:   j.UpdatedAt,
	}
}

// Ptr returns a pointer to v, used to build patches inline
func Ptr[T any](v T) *T {
	return &v
}

// RecoveryAction is what the recovery monitor did with a stuck job
type RecoveryAction string

const (
	RecoveryRequeued  RecoveryAction = "requeued"
	RecoveryAbandoned RecoveryAction = "abandoned"
)

// RecoveryEvent records one reclaim decision for observability
type RecoveryEvent struct {
	JobID      string         `json:"job_id"`
	PriorStage JobStage       `json:"prior_stage"`
	Age        time.Duration  `json:"age"`
	RetryCount int            `json:"retry_count"` // Value after the action
	Action     RecoveryAction `json:"action"`
	At         time.Time      `json:"at"`
}
