package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a generation job ID. Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewWorkerID identifies one worker process instance. Format: wrk_<hostname>_<short uuid>
func NewWorkerID(hostname string) string {
	short := uuid.New().String()[:8]
	if hostname == "" {
		return "wrk_" + short
	}
	return "wrk_" + hostname + "_" + short
}
