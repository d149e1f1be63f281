// Package mediatest provides an in-process interfaces.Transcoder for tests.
package mediatest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// Call records one transcoder invocation
type Call struct {
	Op         string
	Src        string
	Dst        string
	Segments   []string
	Start      float64
	Duration   float64
	Repeats    int
	StreamCopy bool
	Items      []interfaces.DrawTextItem
}

// Transcoder writes small placeholder files instead of running ffmpeg.
// Probe results come from Info, with per-file overrides keyed by base name.
type Transcoder struct {
	Info      interfaces.MediaInfo
	Durations map[string]float64
	Probes    map[string]interfaces.MediaInfo

	// Failures keyed by operation name ("probe", "trim", "loop", "concat", "drawtext", "snapshot")
	Errors map[string]error
	// FailSources fails trim/loop for these source base names
	FailSources map[string]error

	// Block, when set, holds every operation until it is closed or ctx ends
	Block chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ interfaces.Transcoder = (*Transcoder)(nil)

// New returns a transcoder probing everything as 10s of 1080x1920 h264
func New() *Transcoder {
	return &Transcoder{
		Info: interfaces.MediaInfo{
			Duration:    10,
			Width:       1080,
			Height:      1920,
			FrameRate:   30,
			VideoCodec:  "h264",
			PixelFormat: "yuv420p",
		},
		Durations:   make(map[string]float64),
		Probes:      make(map[string]interfaces.MediaInfo),
		Errors:      make(map[string]error),
		FailSources: make(map[string]error),
	}
}

// Calls returns a copy of the recorded invocations
func (t *Transcoder) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsOf returns the recorded invocations of one operation
func (t *Transcoder) CallsOf(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (t *Transcoder) Probe(ctx context.Context, path string) (*interfaces.MediaInfo, error) {
	if err := t.begin(ctx, Call{Op: "probe", Src: path}); err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	info := t.Info
	if p, ok := t.Probes[base]; ok {
		info = p
	}
	if d, ok := t.Durations[base]; ok {
		info.Duration = d
	}
	return &info, nil
}

func (t *Transcoder) Trim(ctx context.Context, src, dst string, start, duration float64, profile models.OutputProfile) error {
	if err := t.begin(ctx, Call{Op: "trim", Src: src, Dst: dst, Start: start, Duration: duration}); err != nil {
		return err
	}
	if err := t.FailSources[filepath.Base(src)]; err != nil {
		return err
	}
	return write(dst)
}

func (t *Transcoder) LoopExtend(ctx context.Context, src, dst string, start float64, repeats int, duration float64, profile models.OutputProfile) error {
	if err := t.begin(ctx, Call{Op: "loop", Src: src, Dst: dst, Start: start, Duration: duration, Repeats: repeats}); err != nil {
		return err
	}
	if err := t.FailSources[filepath.Base(src)]; err != nil {
		return err
	}
	return write(dst)
}

func (t *Transcoder) Concat(ctx context.Context, segments []string, dst string, opts interfaces.ConcatOptions) error {
	if err := t.begin(ctx, Call{Op: "concat", Segments: append([]string(nil), segments...), Dst: dst, StreamCopy: opts.StreamCopy}); err != nil {
		return err
	}
	return write(dst)
}

func (t *Transcoder) DrawText(ctx context.Context, src, dst string, items []interfaces.DrawTextItem) error {
	if err := t.begin(ctx, Call{Op: "drawtext", Src: src, Dst: dst, Items: items}); err != nil {
		return err
	}
	return write(dst)
}

func (t *Transcoder) Snapshot(ctx context.Context, src, dst string, at float64) error {
	if err := t.begin(ctx, Call{Op: "snapshot", Src: src, Dst: dst, Start: at}); err != nil {
		return err
	}
	return write(dst)
}

// begin records the call, waits on Block and returns any configured failure
func (t *Transcoder) begin(ctx context.Context, c Call) error {
	t.mu.Lock()
	t.calls = append(t.calls, c)
	block := t.Block
	err := t.Errors[c.Op]
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return err
}

func write(dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("video"), 0644)
}
