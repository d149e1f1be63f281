package interfaces

import (
	"context"

	"github.com/ternarybob/stayreel/internal/models"
)

// MediaInfo is what a probe reports about a media file
type MediaInfo struct {
	Duration    float64 // Seconds
	Width       int
	Height      int
	FrameRate   float64
	VideoCodec  string
	PixelFormat string
	HasAudio    bool
}

// CompatibleWith reports whether two files can be joined by stream copy
func (m MediaInfo) CompatibleWith(o MediaInfo) bool {
	return m.VideoCodec == o.VideoCodec &&
		m.Width == o.Width &&
		m.Height == o.Height &&
		m.PixelFormat == o.PixelFormat &&
		frameRateEqual(m.FrameRate, o.FrameRate) &&
		m.HasAudio == o.HasAudio
}

func frameRateEqual(a, b float64) bool {
	d := a - b
	return d < 0.01 && d > -0.01
}

// DrawTextItem is one time-gated text draw with absolute pixel coordinates
type DrawTextItem struct {
	Text      string
	X         int
	Y         int
	Align     models.TextAlign
	StartTime float64
	EndTime   float64
	Style     models.OverlayStyle
}

// ConcatOptions controls how segments are joined
type ConcatOptions struct {
	StreamCopy bool                 // Join without re-encoding
	Profile    models.OutputProfile // Target format when re-encoding
}

// Transcoder is the external media tool, consumed as an opaque capability.
// Callers depend only on these operation contracts, never on flag syntax.
type Transcoder interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
	Trim(ctx context.Context, src, dst string, start, duration float64, profile models.OutputProfile) error
	LoopExtend(ctx context.Context, src, dst string, start float64, repeats int, duration float64, profile models.OutputProfile) error
	Concat(ctx context.Context, segments []string, dst string, opts ConcatOptions) error
	DrawText(ctx context.Context, src, dst string, items []DrawTextItem) error

	// Snapshot grabs a single frame as an image (thumbnail)
	Snapshot(ctx context.Context, src, dst string, at float64) error
}
