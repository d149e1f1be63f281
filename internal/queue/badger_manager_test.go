package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/models"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *BadgerManager {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := NewDefaultConfig()
	config.VisibilityTimeout = visibility
	config.MaxReceive = maxReceive

	mgr, err := NewBadgerManager(db, config, arbor.NewLogger())
	require.NoError(t, err)
	return mgr
}

func TestBadgerManager_FIFOAndDelete(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-1", Type: models.JobTypeGenerateVideo}))
	time.Sleep(time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-2", Type: models.JobTypeGenerateVideo}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msg, deleteFn, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", msg.JobID)
	assert.NotEmpty(t, msg.ID)
	require.NoError(t, deleteFn())
	require.NoError(t, deleteFn(), "second delete is a no-op")

	msg, _, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", msg.JobID)

	// job-2 is hidden by the visibility timeout
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBadgerManager_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond, 2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-1", Type: models.JobTypeGenerateVideo}))

	first, _, err := q.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	second, _, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Max receive reached: the message is dropped instead of redelivered
	time.Sleep(40 * time.Millisecond)
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBadgerManager_Extend(t *testing.T) {
	q := newTestQueue(t, 20*time.Millisecond, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-1", Type: models.JobTypeGenerateVideo}))
	msg, deleteFn, err := q.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Extend(ctx, msg.ID, time.Minute))
	time.Sleep(40 * time.Millisecond)

	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage, "extended message stays hidden")

	require.NoError(t, deleteFn())
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBadgerManager_PoisonDropIsCommitted(t *testing.T) {
	q := newTestQueue(t, 10*time.Millisecond, 1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-1", Type: models.JobTypeGenerateVideo}))
	_, _, err := q.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_, _, err = q.Receive(ctx)
		assert.ErrorIs(t, err, ErrNoMessage)

		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "poll %d", i)
	}

	// A later message is still delivered normally
	require.NoError(t, q.Enqueue(ctx, models.QueueMessage{JobID: "job-2", Type: models.JobTypeGenerateVideo}))
	msg, _, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", msg.JobID)
}
