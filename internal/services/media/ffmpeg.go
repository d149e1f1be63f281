// -----------------------------------------------------------------------
// FFmpeg Transcoder - CLI adapter behind interfaces.Transcoder
// -----------------------------------------------------------------------

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// runner executes an external command and returns its stdout.
// Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg implements interfaces.Transcoder with the ffmpeg and ffprobe binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	videoCodec  string
	preset      string
	crf         int
	fontFile    string
	killGrace   time.Duration
	logger      arbor.ILogger
	run         runner
}

var _ interfaces.Transcoder = (*FFmpeg)(nil)

// NewFFmpeg creates the transcoder from the [transcoder] config section
func NewFFmpeg(config common.TranscoderConfig, logger arbor.ILogger) *FFmpeg {
	t := &FFmpeg{
		ffmpegPath:  valueOr(config.FFmpegPath, "ffmpeg"),
		ffprobePath: valueOr(config.FFprobePath, "ffprobe"),
		videoCodec:  valueOr(config.VideoCodec, "libx264"),
		preset:      valueOr(config.Preset, "veryfast"),
		crf:         config.CRF,
		fontFile:    config.FontFile,
		killGrace:   common.ParseDurationOr(config.KillGrace, 5*time.Second),
		logger:      logger,
	}
	if t.crf <= 0 {
		t.crf = 23
	}
	t.run = t.execute
	return t
}

// execute runs the binary. Cancelling ctx kills the process; WaitDelay bounds how long
// we wait for its pipes afterwards so a wedged child cannot outlive the stage.
func (t *FFmpeg) execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = t.killGrace

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: 4096}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	t.logger.Trace().Str("cmd", name).Strs("args", args).Msg("Running media command")

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s terminated: %w", filepath.Base(name), ctxErr)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}

	t.logger.Trace().Str("cmd", name).Dur("elapsed", time.Since(start)).Msg("Media command finished")
	return stdout.Bytes(), nil
}

// Trim cuts duration seconds starting at start and normalises to the output profile
func (t *FFmpeg) Trim(ctx context.Context, src, dst string, start, duration float64, profile models.OutputProfile) error {
	args := []string{"-y", "-v", "error",
		"-ss", seconds(start),
		"-i", src,
		"-t", seconds(duration),
	}
	args = append(args, t.encodeArgs(profile)...)
	args = append(args, dst)

	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}
	return ensureOutput(dst)
}

// LoopExtend plays src repeats times from start and trims the result to duration
func (t *FFmpeg) LoopExtend(ctx context.Context, src, dst string, start float64, repeats int, duration float64, profile models.OutputProfile) error {
	if repeats < 1 {
		repeats = 1
	}
	args := []string{"-y", "-v", "error",
		// -stream_loop counts additional plays
		"-stream_loop", strconv.Itoa(repeats - 1),
		"-i", src,
		"-ss", seconds(start),
		"-t", seconds(duration),
	}
	args = append(args, t.encodeArgs(profile)...)
	args = append(args, dst)

	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}
	return ensureOutput(dst)
}

// Concat joins segments in the given order using the concat demuxer
func (t *FFmpeg) Concat(ctx context.Context, segments []string, dst string, opts interfaces.ConcatOptions) error {
	if len(segments) == 0 {
		return errors.New("no segments to concatenate")
	}

	listFile := strings.TrimSuffix(dst, filepath.Ext(dst)) + "_concat.txt"
	if err := os.WriteFile(listFile, []byte(concatList(segments)), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listFile)

	args := []string{"-y", "-v", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}
	if opts.StreamCopy {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, t.encodeArgs(opts.Profile)...)
	}
	args = append(args, "-movflags", "+faststart", dst)

	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}
	return ensureOutput(dst)
}

// DrawText burns the time-gated text items into src
func (t *FFmpeg) DrawText(ctx context.Context, src, dst string, items []interfaces.DrawTextItem) error {
	if len(items) == 0 {
		return errors.New("no text items to draw")
	}

	args := []string{"-y", "-v", "error",
		"-i", src,
		"-vf", DrawTextFilter(items, t.fontFile),
		"-c:v", t.videoCodec,
		"-preset", t.preset,
		"-crf", strconv.Itoa(t.crf),
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		dst,
	}

	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}
	return ensureOutput(dst)
}

// Snapshot writes a single frame at the given offset as an image
func (t *FFmpeg) Snapshot(ctx context.Context, src, dst string, at float64) error {
	args := []string{"-y", "-v", "error",
		"-ss", seconds(at),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		dst,
	}
	if _, err := t.run(ctx, t.ffmpegPath, args...); err != nil {
		return err
	}
	return ensureOutput(dst)
}

// encodeArgs re-encodes video to the profile so every segment is stream-copy compatible
func (t *FFmpeg) encodeArgs(profile models.OutputProfile) []string {
	if profile.Width <= 0 || profile.Height <= 0 || profile.FPS <= 0 {
		profile = models.DefaultOutputProfile()
	}
	return []string{
		"-vf", ScaleFilter(profile),
		"-r", strconv.Itoa(profile.FPS),
		"-c:v", t.videoCodec,
		"-preset", t.preset,
		"-crf", strconv.Itoa(t.crf),
		"-pix_fmt", "yuv420p",
		"-an",
	}
}

// ScaleFilter letterboxes any input into the profile's frame
func ScaleFilter(profile models.OutputProfile) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		profile.Width, profile.Height, profile.Width, profile.Height, profile.FPS,
	)
}

// concatList renders the concat demuxer list. Single quotes in paths are closed,
// escaped and reopened as the demuxer expects.
func concatList(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s)
		if err != nil {
			abs = s
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func ensureOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no output produced: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", filepath.Base(path))
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// tailBuffer keeps the last limit bytes written, enough for an ffmpeg error line
type tailBuffer struct {
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
