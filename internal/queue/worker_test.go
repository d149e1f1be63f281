package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/models"
)

func TestWorkerPool_DispatchesByTypeAndSurvivesPanics(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	config := NewDefaultConfig()
	config.PollInterval = 10 * time.Millisecond
	config.Concurrency = 2
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	var mu sync.Mutex
	handled := map[string]bool{}
	pool.RegisterHandler(models.JobTypeGenerateVideo, func(ctx context.Context, msg *models.QueueMessage) error {
		mu.Lock()
		handled[msg.JobID] = true
		mu.Unlock()

		switch msg.JobID {
		case "panics":
			panic("boom")
		case "fails":
			return errors.New("transient")
		}
		return nil
	})

	for _, id := range []string{"ok", "panics", "fails", "ok-2"} {
		require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: id, Type: models.JobTypeGenerateVideo}))
	}
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "unknown", Type: "no_such_type"}))

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		n, err := q.Len(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "every message is deleted after handling")

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, handled, 4)
	assert.True(t, handled["ok-2"], "pool keeps working after a handler panic")
}

func TestWorkerPool_StopWaitsForWorkers(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	config := NewDefaultConfig()
	config.PollInterval = 5 * time.Millisecond
	pool := NewWorkerPool(q, config, arbor.NewLogger())

	require.NoError(t, pool.Start(context.Background()))
	assert.Error(t, pool.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
