package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobSubmitted    EventType = "job_submitted"
	EventJobStarted      EventType = "job_started"
	EventJobStageChanged EventType = "job_stage_changed"
	EventJobCompleted    EventType = "job_completed"
	EventJobFailed       EventType = "job_failed" // Payload status says whether the failure is terminal
	EventJobRequeued     EventType = "job_requeued"
	EventJobAbandoned    EventType = "job_abandoned"
)

// JobEventTypes lists every job lifecycle event
var JobEventTypes = []EventType{
	EventJobSubmitted,
	EventJobStarted,
	EventJobStageChanged,
	EventJobCompleted,
	EventJobFailed,
	EventJobRequeued,
	EventJobAbandoned,
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers without waiting
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close drops every subscriber
	Close() error
}
