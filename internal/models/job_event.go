package models

import "time"

// JobEvent is the payload of every job lifecycle event
type JobEvent struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Stage      JobStage  `json:"stage,omitempty"`
	Progress   int       `json:"progress"`
	RetryCount int       `json:"retry_count"`
	OutputRef  string    `json:"output_ref,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	WorkerID   string    `json:"worker_id,omitempty"`
	At         time.Time `json:"at"`
}
