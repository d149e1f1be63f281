package models

// JobTypeGenerateVideo routes a queue message to the orchestrator
const JobTypeGenerateVideo = "generate_video"

// QueueMessage is the structure stored in the queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	ID      string `json:"id,omitempty"` // Set by the queue on receive
	JobID   string `json:"job_id"`       // References GenerationJob.ID
	Type    string `json:"type"`         // Job type for handler routing
	Attempt int    `json:"attempt"`      // Retry count at enqueue time
}
