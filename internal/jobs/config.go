package jobs

import (
	"time"

	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/models"
)

const defaultStageTimeout = 10 * time.Minute

// Config holds the orchestrator's runtime settings
type Config struct {
	WorkspaceRoot     string
	Policy            common.ExtractionPolicy
	HeartbeatInterval time.Duration
	MessageExtension  time.Duration // Queue visibility pushed forward on each heartbeat
	StageTimeouts     map[models.JobStage]time.Duration
	WorkerID          string
}

// ConfigFromCommon builds the orchestrator config from the application config
func ConfigFromCommon(c *common.Config, workerID string) Config {
	t := c.Pipeline.StageTimeouts
	return Config{
		WorkspaceRoot:     c.Workspace.Root,
		Policy:            c.Pipeline.ExtractionPolicy,
		HeartbeatInterval: common.ParseDurationOr(c.Pipeline.HeartbeatInterval, 20*time.Second),
		MessageExtension:  common.ParseDurationOr(c.Queue.VisibilityTimeout, 5*time.Minute),
		StageTimeouts: map[models.JobStage]time.Duration{
			models.StageMatching:   common.ParseDurationOr(t.Matching, 30*time.Second),
			models.StageExtracting: common.ParseDurationOr(t.Extracting, defaultStageTimeout),
			models.StageAssembling: common.ParseDurationOr(t.Assembling, defaultStageTimeout),
			models.StagePublishing: common.ParseDurationOr(t.Publishing, 5*time.Minute),
			models.StageFinalizing: common.ParseDurationOr(t.Finalizing, time.Minute),
		},
		WorkerID: workerID,
	}
}

func (c Config) stageTimeout(stage models.JobStage) time.Duration {
	if d, ok := c.StageTimeouts[stage]; ok && d > 0 {
		return d
	}
	return defaultStageTimeout
}
