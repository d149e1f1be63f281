package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
)

// TaskName is the scheduler task the janitor registers
const TaskName = "workspace_janitor"

// Janitor removes job workspaces left behind by crashed or killed workers.
// Workers remove their own workspace on every exit, so anything old here is debris.
type Janitor struct {
	root     string
	maxAge   time.Duration
	schedule string
	logger   arbor.ILogger
	now      func() time.Time
}

// NewJanitor creates a janitor from the [workspace] config section
func NewJanitor(config common.WorkspaceConfig, logger arbor.ILogger) *Janitor {
	schedule := config.JanitorSchedule
	if schedule == "" {
		schedule = "@every 15m"
	}
	return &Janitor{
		root:     config.Root,
		maxAge:   common.ParseDurationOr(config.MaxAge, 6*time.Hour),
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Register schedules the sweep on sched
func (j *Janitor) Register(sched interfaces.TaskScheduler) error {
	return sched.RegisterTask(TaskName, j.schedule, "Remove stale job workspaces", func(ctx context.Context) error {
		_, err := j.Sweep(ctx)
		return err
	})
}

// Sweep deletes workspace directories not modified within maxAge and returns how many
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read workspace root: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			j.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove stale workspace")
			continue
		}
		removed++
		j.logger.Debug().Str("dir", dir).Dur("age", j.now().Sub(info.ModTime())).Msg("Removed stale workspace")
	}

	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Workspace janitor sweep finished")
	}
	return removed, nil
}
