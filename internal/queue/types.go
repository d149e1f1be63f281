package queue

import (
	"context"

	"github.com/ternarybob/stayreel/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = models.ErrNoMessage

// JobHandler handles one message of a registered job type.
// The message is deleted after the handler returns, whatever the result.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error
