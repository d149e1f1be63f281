// -----------------------------------------------------------------------
// Segment Extractor - one normalised segment per slot assignment
// -----------------------------------------------------------------------

package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"golang.org/x/sync/errgroup"
)

// durationTolerance absorbs container rounding when comparing footage to targets
const durationTolerance = 0.01

// Segment is an extracted, profile-normalised piece of video for one slot
type Segment struct {
	SlotOrder    int
	ClipID       string
	Path         string
	Duration     float64
	LoopExtended bool
}

// Options controls a multi-slot extraction
type Options struct {
	Policy   common.ExtractionPolicy
	Profile  models.OutputProfile
	Progress func(done, total int) // Called after every finished slot, success or not
}

// Result holds the segments in slot order. Skipped slots are listed in Failures.
type Result struct {
	Segments []*Segment
	Failures []*models.SegmentExtractionError
}

// Extractor turns slot assignments into local segment files
type Extractor struct {
	store       interfaces.ObjectStore
	transcoder  interfaces.Transcoder
	concurrency int
	logger      arbor.ILogger
}

// NewExtractor creates an extractor running at most concurrency slots in parallel
func NewExtractor(store interfaces.ObjectStore, transcoder interfaces.Transcoder, concurrency int, logger arbor.ILogger) *Extractor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{
		store:       store,
		transcoder:  transcoder,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ExtractAll extracts every assignment into workDir.
// With fail_fast the first failure cancels the rest and is returned.
// With skip_slot failures are collected; only a total failure is an error.
func (e *Extractor) ExtractAll(ctx context.Context, workDir string, spec *models.TemplateSpec, assignments []models.SlotAssignment, opts Options) (*Result, error) {
	if len(assignments) == 0 {
		return nil, errors.New("no slot assignments to extract")
	}

	sources := NewSources(e.store, e.transcoder, filepath.Join(workDir, "sources"))
	segmentDir := filepath.Join(workDir, "segments")
	if err := os.MkdirAll(segmentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	segments := make([]*Segment, len(assignments))
	failures := make([]*models.SegmentExtractionError, len(assignments))

	var mu sync.Mutex
	done := 0
	report := func() {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		done++
		n := done
		mu.Unlock()
		opts.Progress(n, len(assignments))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	slots := make([]models.ClipSlot, len(assignments))
	for i, assignment := range assignments {
		slot, ok := spec.Slot(assignment.SlotOrder)
		if !ok {
			return nil, &models.MalformedTemplateError{
				TemplateID: spec.ID,
				Reason:     fmt.Sprintf("assignment references unknown slot %d", assignment.SlotOrder),
			}
		}
		slots[i] = slot
	}

	for i, assignment := range assignments {
		slot := slots[i]
		g.Go(func() error {
			defer report()

			seg, err := e.Extract(gctx, sources, segmentDir, slot, assignment, opts.Profile)
			if err == nil {
				segments[i] = seg
				return nil
			}

			var extractErr *models.SegmentExtractionError
			if !errors.As(err, &extractErr) {
				extractErr = &models.SegmentExtractionError{SlotOrder: slot.Order, ClipID: assignment.ClipID, Err: err}
			}
			if opts.Policy == common.ExtractionSkipSlot && ctx.Err() == nil {
				e.logger.Warn().Int("slot", slot.Order).Str("clip_id", assignment.ClipID).Err(err).Msg("Skipping slot after extraction failure")
				failures[i] = extractErr
				return nil
			}
			return extractErr
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for i := range assignments {
		if segments[i] != nil {
			result.Segments = append(result.Segments, segments[i])
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, failures[i])
		}
	}
	sort.SliceStable(result.Segments, func(a, b int) bool {
		return result.Segments[a].SlotOrder < result.Segments[b].SlotOrder
	})

	if len(result.Segments) == 0 {
		return nil, fmt.Errorf("every slot failed to extract: %w", result.Failures[0])
	}

	e.logger.Debug().Int("segments", len(result.Segments)).Int("skipped", len(result.Failures)).
		Int("sources", sources.Len()).Msg("Extraction complete")
	return result, nil
}

// Extract produces exactly slot.TargetDuration seconds of video for one assignment.
// Footage that is long enough is trimmed; short footage is looped then trimmed.
func (e *Extractor) Extract(ctx context.Context, sources *Sources, segmentDir string, slot models.ClipSlot, assignment models.SlotAssignment, profile models.OutputProfile) (*Segment, error) {
	fail := func(err error) error {
		return &models.SegmentExtractionError{SlotOrder: slot.Order, ClipID: assignment.ClipID, Err: err}
	}

	local, info, err := sources.Get(ctx, assignment.ClipID, assignment.SourceRef)
	if err != nil {
		return nil, fail(err)
	}

	// The probe is authoritative; the catalog duration is only a hint
	fullDuration := info.Duration
	if fullDuration <= 0 {
		fullDuration = assignment.AvailableDuration
	}
	if fullDuration <= 0 {
		return nil, fail(errors.New("source has no usable footage"))
	}

	start := assignment.ExtractStart
	if start >= fullDuration {
		start = 0
	}
	target := slot.TargetDuration
	usable := fullDuration - start

	seg := &Segment{
		SlotOrder: slot.Order,
		ClipID:    assignment.ClipID,
		Path:      filepath.Join(segmentDir, fmt.Sprintf("slot_%03d.mp4", slot.Order)),
		Duration:  target,
	}

	if usable+durationTolerance >= target {
		err = e.transcoder.Trim(ctx, local, seg.Path, start, target, profile)
	} else {
		repeats := LoopRepeats(start, target, fullDuration)
		seg.LoopExtended = true
		e.logger.Debug().Int("slot", slot.Order).Str("clip_id", assignment.ClipID).
			Float64("usable", usable).Float64("target", target).Int("repeats", repeats).
			Msg("Loop-extending short footage")
		err = e.transcoder.LoopExtend(ctx, local, seg.Path, start, repeats, target, profile)
	}
	if err != nil {
		return nil, fail(err)
	}

	stat, err := os.Stat(seg.Path)
	if err != nil {
		return nil, fail(fmt.Errorf("segment missing after extraction: %w", err))
	}
	if stat.Size() == 0 {
		return nil, fail(errors.New("zero-length segment"))
	}
	return seg, nil
}

// LoopRepeats is how many plays of a clip of fullDuration cover target seconds from start.
// From a zero start this is ceil(target / fullDuration).
func LoopRepeats(start, target, fullDuration float64) int {
	if fullDuration <= 0 {
		return 1
	}
	repeats := int(math.Ceil((start + target - durationTolerance) / fullDuration))
	if repeats < 1 {
		repeats = 1
	}
	return repeats
}
