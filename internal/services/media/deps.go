package media

import (
	"fmt"
	"os/exec"
)

// DependencyReport says whether the media binaries can be found
type DependencyReport struct {
	FFmpegFound  bool
	FFmpegPath   string
	FFprobeFound bool
	FFprobePath  string
}

// DependencyStatus resolves the configured binaries on PATH
func (t *FFmpeg) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(t.ffmpegPath); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath(t.ffprobePath); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

// CheckDependencies fails when either binary is missing
func (t *FFmpeg) CheckDependencies() error {
	report := t.DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", t.ffmpegPath)
	}
	if !report.FFprobeFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", t.ffprobePath)
	}
	return nil
}
