package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/assembler"
	"github.com/ternarybob/stayreel/internal/services/events"
	"github.com/ternarybob/stayreel/internal/services/extractor"
	"github.com/ternarybob/stayreel/internal/services/matcher"
	"github.com/ternarybob/stayreel/internal/services/media/mediatest"
	"github.com/ternarybob/stayreel/internal/services/objectstore"
	badgerstore "github.com/ternarybob/stayreel/internal/storage/badger"
)

// fakeQueue records enqueued messages
type fakeQueue struct {
	mu       sync.Mutex
	messages []models.QueueMessage
	extended int
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (q *fakeQueue) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.extended++
	return nil
}

func (q *fakeQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}

func (q *fakeQueue) Close() error { return nil }

var _ interfaces.QueueManager = (*fakeQueue)(nil)

// eventRecorder collects every job event published during a test
type eventRecorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *eventRecorder) handle(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// types returns the recorded event types in delivery order
func (r *eventRecorder) types() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interfaces.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) count(eventType interfaces.EventType) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(eventType interfaces.EventType) (models.JobEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i].Payload.(models.JobEvent), true
		}
	}
	return models.JobEvent{}, false
}

type harness struct {
	jobs        interfaces.JobStorage
	clips       interfaces.ClipStorage
	templates   interfaces.TemplateStorage
	transcoder  *mediatest.Transcoder
	queue       *fakeQueue
	events      *eventRecorder
	orch        *Orchestrator
	service     *Service
	workRoot    string
	publishRoot string
}

func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()
	logger := arbor.NewLogger()
	root := t.TempDir()

	mgr, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(root, "db")})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	sourceRoot := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(sourceRoot, 0755))
	transcoder := mediatest.New()
	for name, duration := range map[string]float64{"pool.mp4": 10, "bed.mp4": 3} {
		require.NoError(t, os.WriteFile(filepath.Join(sourceRoot, name), []byte("src"), 0644))
		transcoder.Durations[name] = duration
	}

	h := &harness{
		jobs:        mgr.JobStorage(),
		clips:       mgr.ClipStorage(),
		templates:   mgr.TemplateStorage(),
		transcoder:  transcoder,
		queue:       &fakeQueue{},
		events:      &eventRecorder{},
		workRoot:    filepath.Join(root, "work"),
		publishRoot: filepath.Join(root, "published"),
	}

	require.NoError(t, h.templates.SaveTemplate(ctx, &models.StoredTemplate{
		ID:   "teaser",
		Name: "Resort teaser",
		Spec: models.TemplateSpec{
			ID: "teaser",
			Slots: []models.ClipSlot{
				{Order: 0, TargetDuration: 3, Description: "sunny pool with loungers"},
				{Order: 1, TargetDuration: 7, Description: "cozy bedroom with king bed"},
			},
		},
		Overlays: []models.TextOverlay{
			{Content: "Welcome", StartTime: 0, EndTime: 3, Position: models.OverlayPosition{X: 0.5, Y: 0.2}},
		},
	}))
	for _, clip := range []*models.CandidateClip{
		{ID: "c-pool", PropertyID: "casa", SourceRef: "pool.mp4", Description: "outdoor swimming pool with sun loungers", AvailableDuration: 10},
		{ID: "c-bed", PropertyID: "casa", SourceRef: "bed.mp4", Description: "king bedroom with crisp linen", AvailableDuration: 3},
	} {
		require.NoError(t, h.clips.SaveClip(ctx, clip))
	}

	store := objectstore.NewFilesystemStore(common.MediaConfig{
		SourceRoot:  sourceRoot,
		PublishRoot: h.publishRoot,
	}, logger)

	bus := events.NewService(logger)
	for _, eventType := range interfaces.JobEventTypes {
		require.NoError(t, bus.Subscribe(eventType, h.events.handle))
	}

	config := ConfigFromCommon(common.NewDefaultConfig(), "wrk_test")
	config.WorkspaceRoot = h.workRoot
	config.HeartbeatInterval = 0
	if configure != nil {
		configure(&config)
	}

	h.orch = NewOrchestrator(Dependencies{
		Jobs:        h.jobs,
		Clips:       h.clips,
		Templates:   h.templates,
		Queue:       h.queue,
		ObjectStore: store,
		Transcoder:  transcoder,
		Matcher:     matcher.NewMatcher(nil),
		Extractor:   extractor.NewExtractor(store, transcoder, 2, logger),
		Assembler:   assembler.NewAssembler(transcoder, logger),
		Events:      bus,
	}, config, logger)
	h.service = NewService(h.jobs, h.queue, 2, logger)
	h.service.SetEventService(bus)
	return h
}

func (h *harness) submit(t *testing.T, templateID, propertyID string) string {
	t.Helper()
	jobID, err := h.service.Submit(context.Background(), templateID, propertyID)
	require.NoError(t, err)
	return jobID
}

func (h *harness) job(t *testing.T, jobID string) *models.GenerationJob {
	t.Helper()
	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

// workspaceEmpty reports whether no job directory is left behind
func (h *harness) workspaceEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(h.workRoot)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	require.NoError(t, err)
	return len(entries) == 0
}
