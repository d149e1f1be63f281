package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs job events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(models.JobEvent); ok {
			logEvent = logEvent.
				Str("job_id", payload.JobID).
				Str("status", string(payload.Status)).
				Int("progress", payload.Progress).
				Int("retry_count", payload.RetryCount)
			if payload.Stage != models.StageNone {
				logEvent = logEvent.Str("stage", string(payload.Stage))
			}
			if payload.Reason != "" {
				logEvent = logEvent.Str("reason", payload.Reason)
			}
			if payload.OutputRef != "" {
				logEvent = logEvent.Str("output_ref", payload.OutputRef)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every job event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range interfaces.JobEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(interfaces.JobEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
