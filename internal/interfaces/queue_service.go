package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/stayreel/internal/models"
)

// QueueManager manages the persistent message queue
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	// Receive returns the next visible message and a function deleting it once handled
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// JobService is the job trigger interface exposed to the API layer
type JobService interface {
	Submit(ctx context.Context, templateID, propertyID string) (string, error)
	GetStatus(ctx context.Context, jobID string) (*models.JobStatusView, error)
}

// RecoveryMonitor reclaims stalled jobs
type RecoveryMonitor interface {
	Start() error
	Stop()
	Sweep(ctx context.Context) (*models.SweepResult, error)
	Stats() models.RecoveryStats
}
