// -----------------------------------------------------------------------
// Timeline Assembler - concatenation plus timed text overlays
// -----------------------------------------------------------------------

package assembler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/services/extractor"
)

// Assembly is the rendered timeline
type Assembly struct {
	Path            string
	Duration        float64
	StreamCopy      bool // Segments were joined without re-encoding
	OverlaysApplied int
	Degraded        bool
	DegradedReasons []string
}

// Assembler joins segments in slot order and burns in text overlays
type Assembler struct {
	transcoder interfaces.Transcoder
	logger     arbor.ILogger
}

// NewAssembler creates an assembler over the given transcoder
func NewAssembler(transcoder interfaces.Transcoder, logger arbor.ILogger) *Assembler {
	return &Assembler{transcoder: transcoder, logger: logger}
}

// Assemble renders segments and overlays into a single file inside workDir.
// A concat failure leaves no output behind. An overlay failure falls back to the
// overlay-free timeline and marks the assembly degraded.
func (a *Assembler) Assemble(ctx context.Context, workDir string, segments []*extractor.Segment, overlays []models.TextOverlay, profile models.OutputProfile) (*Assembly, error) {
	if len(segments) == 0 {
		return nil, &models.AssemblyError{Op: "concat", Err: errors.New("no segments")}
	}

	ordered := append([]*extractor.Segment(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SlotOrder < ordered[j].SlotOrder })

	paths := make([]string, len(ordered))
	infos := make([]*interfaces.MediaInfo, len(ordered))
	var total float64
	for i, seg := range ordered {
		info, err := a.transcoder.Probe(ctx, seg.Path)
		if err != nil {
			return nil, &models.AssemblyError{Op: "probe", Err: fmt.Errorf("segment %d: %w", seg.SlotOrder, err)}
		}
		paths[i] = seg.Path
		infos[i] = info
		total += seg.Duration
	}

	streamCopy := true
	for _, info := range infos[1:] {
		if !infos[0].CompatibleWith(*info) {
			streamCopy = false
			break
		}
	}

	assembly := &Assembly{
		Path:       filepath.Join(workDir, "assembled.mp4"),
		Duration:   total,
		StreamCopy: streamCopy,
	}

	a.logger.Debug().Int("segments", len(paths)).Bool("stream_copy", streamCopy).
		Float64("duration", total).Msg("Concatenating segments")

	err := a.transcoder.Concat(ctx, paths, assembly.Path, interfaces.ConcatOptions{
		StreamCopy: streamCopy,
		Profile:    profile,
	})
	if err != nil {
		os.Remove(assembly.Path)
		return nil, &models.AssemblyError{Op: "concat", Err: err}
	}

	items, dropped := a.drawItems(ctx, assembly, overlays, profile)
	if dropped > 0 {
		assembly.addDegraded(fmt.Sprintf("%d overlay(s) outside the timeline were dropped", dropped))
	}
	if len(items) == 0 {
		return assembly, nil
	}

	withText := filepath.Join(workDir, "final.mp4")
	if err := a.transcoder.DrawText(ctx, assembly.Path, withText, items); err != nil {
		os.Remove(withText)
		if ctx.Err() != nil {
			// A timeout is not a rendering problem; let the caller treat it as transient
			return nil, &models.AssemblyError{Op: "overlay", Err: ctx.Err()}
		}
		a.logger.Warn().Err(err).Int("overlays", len(items)).Msg("Overlay render failed, using overlay-free output")
		assembly.addDegraded(fmt.Sprintf("overlay render failed: %v", err))
		return assembly, nil
	}

	assembly.Path = withText
	assembly.OverlaysApplied = len(items)
	return assembly, nil
}

// drawItems maps relative overlay positions onto the rendered frame and clips
// overlay windows to the timeline. Returns the items and how many were dropped.
func (a *Assembler) drawItems(ctx context.Context, assembly *Assembly, overlays []models.TextOverlay, profile models.OutputProfile) ([]interfaces.DrawTextItem, int) {
	if len(overlays) == 0 {
		return nil, 0
	}

	width, height := profile.Width, profile.Height
	if info, err := a.transcoder.Probe(ctx, assembly.Path); err == nil && info.Width > 0 && info.Height > 0 {
		width, height = info.Width, info.Height
	} else if err != nil {
		a.logger.Debug().Err(err).Msg("Probe of assembled output failed, using profile resolution")
	}

	items := make([]interfaces.DrawTextItem, 0, len(overlays))
	dropped := 0
	for _, o := range overlays {
		end := math.Min(o.EndTime, assembly.Duration)
		if o.StartTime >= end || o.Content == "" {
			dropped++
			continue
		}
		items = append(items, ToDrawTextItem(o, width, height, end))
	}
	return items, dropped
}

// ToDrawTextItem converts a relative overlay to absolute pixel coordinates
func ToDrawTextItem(o models.TextOverlay, width, height int, end float64) interfaces.DrawTextItem {
	align := o.Style.Align
	if align == "" {
		align = models.TextAlignCenter
	}
	return interfaces.DrawTextItem{
		Text:      o.Content,
		X:         int(math.Round(clamp01(o.Position.X) * float64(width))),
		Y:         int(math.Round(clamp01(o.Position.Y) * float64(height))),
		Align:     align,
		StartTime: o.StartTime,
		EndTime:   end,
		Style:     o.Style,
	}
}

func (a *Assembly) addDegraded(reason string) {
	a.Degraded = true
	a.DegradedReasons = append(a.DegradedReasons, reason)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
