package jobs

import (
	"context"
	"sync"

	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// tracker serialises every write one worker makes to its job record.
// It holds the last version this worker wrote; any conditional update that misses
// means someone else changed the job, and the worker no longer owns it.
type tracker struct {
	mu      sync.Mutex
	store   interfaces.JobStorage
	jobID   string
	version int64
	lost    bool
	onLost  func()
}

func newTracker(store interfaces.JobStorage, job *models.GenerationJob, onLost func()) *tracker {
	return &tracker{
		store:   store,
		jobID:   job.ID,
		version: job.Version,
		onLost:  onLost,
	}
}

// update applies patch at the held version. Returns ErrOwnershipLost once the
// job has been changed by another actor; every later call fails the same way.
func (t *tracker) update(ctx context.Context, patch models.JobPatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lost {
		return models.ErrOwnershipLost
	}

	applied, err := t.store.UpdateJob(ctx, t.jobID, t.version, patch)
	if err != nil {
		return err
	}
	if !applied {
		t.lost = true
		if t.onLost != nil {
			t.onLost()
		}
		return models.ErrOwnershipLost
	}
	t.version++
	return nil
}

// heartbeat refreshes UpdatedAt without changing anything else
func (t *tracker) heartbeat(ctx context.Context) error {
	return t.update(ctx, models.JobPatch{})
}

func (t *tracker) isLost() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lost
}
