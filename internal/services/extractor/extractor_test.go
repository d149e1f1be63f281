package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/media/mediatest"
	"github.com/ternarybob/stayreel/internal/services/objectstore"
)

type fixture struct {
	extractor  *Extractor
	transcoder *mediatest.Transcoder
	workDir    string
	spec       *models.TemplateSpec
}

func newFixture(t *testing.T, clips map[string]float64) *fixture {
	t.Helper()
	root := t.TempDir()
	sourceRoot := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(sourceRoot, 0755))

	transcoder := mediatest.New()
	for name, duration := range clips {
		require.NoError(t, os.WriteFile(filepath.Join(sourceRoot, name), []byte("src"), 0644))
		transcoder.Durations[name] = duration
	}

	store := objectstore.NewFilesystemStore(common.MediaConfig{
		SourceRoot:  sourceRoot,
		PublishRoot: filepath.Join(root, "published"),
	}, arbor.NewLogger())

	return &fixture{
		extractor:  NewExtractor(store, transcoder, 2, arbor.NewLogger()),
		transcoder: transcoder,
		workDir:    filepath.Join(root, "work"),
		spec: &models.TemplateSpec{
			ID: "tmpl",
			Slots: []models.ClipSlot{
				{Order: 0, TargetDuration: 3, Description: "pool"},
				{Order: 1, TargetDuration: 7, Description: "bedroom"},
			},
		},
	}
}

func assign(order int, clipID, ref string, start, end, available float64) models.SlotAssignment {
	return models.SlotAssignment{
		SlotOrder:         order,
		ClipID:            clipID,
		SourceRef:         ref,
		ExtractStart:      start,
		ExtractEnd:        end,
		AvailableDuration: available,
	}
}

func TestExtractAll_TrimAndLoop(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 10, "bed.mp4": 3})

	var progress []int
	var mu sync.Mutex
	result, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 10),
		assign(1, "c-bed", "bed.mp4", 0, 7, 3),
	}, Options{
		Policy:  common.ExtractionFailFast,
		Profile: models.DefaultOutputProfile(),
		Progress: func(done, total int) {
			mu.Lock()
			progress = append(progress, done)
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)
	assert.Empty(t, result.Failures)

	assert.Equal(t, 0, result.Segments[0].SlotOrder)
	assert.False(t, result.Segments[0].LoopExtended)
	assert.Equal(t, 1, result.Segments[1].SlotOrder)
	assert.True(t, result.Segments[1].LoopExtended)

	trims := f.transcoder.CallsOf("trim")
	require.Len(t, trims, 1)
	assert.Equal(t, 3.0, trims[0].Duration)

	loops := f.transcoder.CallsOf("loop")
	require.Len(t, loops, 1)
	assert.Equal(t, 3, loops[0].Repeats, "ceil(7/3) plays")
	assert.Equal(t, 7.0, loops[0].Duration)

	assert.ElementsMatch(t, []int{1, 2}, progress)
	for _, seg := range result.Segments {
		assert.FileExists(t, seg.Path)
		assert.Equal(t, filepath.Join(f.workDir, "segments"), filepath.Dir(seg.Path))
	}
}

func TestExtractAll_ReusedClipFetchedOnce(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 20})

	_, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 20),
		assign(1, "c-pool", "pool.mp4", 3, 10, 20),
	}, Options{Profile: models.DefaultOutputProfile()})
	require.NoError(t, err)

	assert.Len(t, f.transcoder.CallsOf("probe"), 1)
	trims := f.transcoder.CallsOf("trim")
	require.Len(t, trims, 2)
	starts := []float64{trims[0].Start, trims[1].Start}
	assert.ElementsMatch(t, []float64{0, 3}, starts)
}

func TestExtractAll_ProbeIsAuthoritative(t *testing.T) {
	// Catalog claims 10s but the file only holds 2s
	f := newFixture(t, map[string]float64{"pool.mp4": 2})

	_, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 10),
	}, Options{Profile: models.DefaultOutputProfile()})
	require.NoError(t, err)

	loops := f.transcoder.CallsOf("loop")
	require.Len(t, loops, 1)
	assert.Equal(t, 2, loops[0].Repeats)
}

func TestExtractAll_FailFast(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 10, "bed.mp4": 10})
	f.transcoder.FailSources["bed.mp4"] = errors.New("decoder error")

	_, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 10),
		assign(1, "c-bed", "bed.mp4", 0, 7, 10),
	}, Options{Policy: common.ExtractionFailFast, Profile: models.DefaultOutputProfile()})

	var extractErr *models.SegmentExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, 1, extractErr.SlotOrder)
	assert.Equal(t, "c-bed", extractErr.ClipID)
}

func TestExtractAll_SkipSlot(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 10})

	result, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 10),
		assign(1, "c-gone", "missing.mp4", 0, 7, 10),
	}, Options{Policy: common.ExtractionSkipSlot, Profile: models.DefaultOutputProfile()})
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].SlotOrder)
}

func TestExtractAll_SkipSlotEveryFailure(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-a", "a.mp4", 0, 3, 10),
		assign(1, "c-b", "b.mp4", 0, 7, 10),
	}, Options{Policy: common.ExtractionSkipSlot, Profile: models.DefaultOutputProfile()})
	require.Error(t, err)

	var extractErr *models.SegmentExtractionError
	assert.True(t, errors.As(err, &extractErr))
}

func TestExtractAll_UnknownSlot(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 10})

	_, err := f.extractor.ExtractAll(context.Background(), f.workDir, f.spec, []models.SlotAssignment{
		assign(5, "c-pool", "pool.mp4", 0, 3, 10),
	}, Options{})
	assert.True(t, models.IsPermanent(err))
}

func TestExtractAll_Cancelled(t *testing.T) {
	f := newFixture(t, map[string]float64{"pool.mp4": 10})
	f.transcoder.Block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.extractor.ExtractAll(ctx, f.workDir, f.spec, []models.SlotAssignment{
		assign(0, "c-pool", "pool.mp4", 0, 3, 10),
	}, Options{Policy: common.ExtractionSkipSlot})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopRepeats(t *testing.T) {
	assert.Equal(t, 3, LoopRepeats(0, 7, 3))
	assert.Equal(t, 2, LoopRepeats(0, 6, 3))
	assert.Equal(t, 1, LoopRepeats(0, 2, 3))
	assert.Equal(t, 2, LoopRepeats(2, 3, 4), "footage after start is only 2s")
	assert.Equal(t, 1, LoopRepeats(0, 5, 0))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "clip_1", safeName("clip/1"))
	assert.Equal(t, "clip", safeName(".."))
}
