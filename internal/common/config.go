package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Queue       QueueConfig      `toml:"queue"`
	Storage     StorageConfig    `toml:"storage"`
	Workspace   WorkspaceConfig  `toml:"workspace"`
	Transcoder  TranscoderConfig `toml:"transcoder"`
	Matcher     MatcherConfig    `toml:"matcher"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Recovery    RecoveryConfig   `toml:"recovery"`
	Templates   TemplatesConfig  `toml:"templates"`
	Catalog     CatalogConfig    `toml:"catalog"`
	Logging     LoggingConfig    `toml:"logging"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before it is dropped
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	Media  MediaConfig  `toml:"media"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// MediaConfig configures the filesystem object store
type MediaConfig struct {
	SourceRoot    string `toml:"source_root"`     // Relative source refs resolve under this directory
	PublishRoot   string `toml:"publish_root"`    // Published deliverables are written here
	PublicBaseURL string `toml:"public_base_url"` // Optional prefix for published refs (empty = file path)
	FetchTimeout  string `toml:"fetch_timeout"`   // HTTP(S) source download timeout
}

// WorkspaceConfig configures per-job scratch directories
type WorkspaceConfig struct {
	Root            string `toml:"root"`             // Parent of every job working directory
	MaxAge          string `toml:"max_age"`          // Janitor removes leftovers older than this
	JanitorSchedule string `toml:"janitor_schedule"` // Cron schedule for the janitor sweep
}

// TranscoderConfig configures the ffmpeg CLI adapter
type TranscoderConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	VideoCodec  string `toml:"video_codec"` // e.g., "libx264"
	Preset      string `toml:"preset"`      // e.g., "veryfast"
	CRF         int    `toml:"crf"`
	FontFile    string `toml:"font_file"` // Optional drawtext font file
	KillGrace   string `toml:"kill_grace"` // Wait after cancellation before the process is force-killed
}

// MatcherConfig holds the weights of the scoring sub-scores
type MatcherConfig struct {
	ThemeWeight    float64 `toml:"theme_weight"`
	LexicalWeight  float64 `toml:"lexical_weight"`
	TieBreakWeight float64 `toml:"tie_break_weight"`
}

// ExtractionPolicy decides what happens when one slot fails to extract
type ExtractionPolicy string

const (
	ExtractionFailFast ExtractionPolicy = "fail_fast"
	ExtractionSkipSlot ExtractionPolicy = "skip_slot"
)

// StageTimeoutsConfig holds per-stage timeouts as duration strings
type StageTimeoutsConfig struct {
	Matching   string `toml:"matching"`
	Extracting string `toml:"extracting"`
	Assembling string `toml:"assembling"`
	Publishing string `toml:"publishing"`
	Finalizing string `toml:"finalizing"`
}

// PipelineConfig configures the job orchestrator
type PipelineConfig struct {
	ExtractionPolicy   ExtractionPolicy    `toml:"extraction_policy"`   // fail_fast (default) or skip_slot
	ExtractConcurrency int                 `toml:"extract_concurrency"` // Parallel slot extractions per job
	HeartbeatInterval  string              `toml:"heartbeat_interval"`  // Must stay below recovery.stuck_threshold
	MaxRetries         int                 `toml:"max_retries"`         // Retry budget stamped on new jobs
	StageTimeouts      StageTimeoutsConfig `toml:"stage_timeouts"`
}

// RecoveryConfig configures the stuck-job monitor
type RecoveryConfig struct {
	Enabled               bool    `toml:"enabled"`
	Schedule              string  `toml:"schedule"`                 // Cron schedule, e.g. "@every 30s"
	StuckThreshold        string  `toml:"stuck_threshold"`          // e.g., "90s"
	LookbackWindow        string  `toml:"lookback_window"`          // Ignore jobs created before now-lookback
	MaxResubmitsPerSecond float64 `toml:"max_resubmits_per_second"` // Re-enqueue throttle
	RecentEvents          int     `toml:"recent_events"`            // Size of the recent events ring
}

// TemplatesConfig points at template files loaded on startup
type TemplatesConfig struct {
	Dir string `toml:"dir"`
}

// CatalogConfig points at clip catalog files loaded on startup
type CatalogConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // ffmpeg is CPU bound, keep this near the core count
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "stayreel_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			Media: MediaConfig{
				SourceRoot:   "./data/media",
				PublishRoot:  "./data/published",
				FetchTimeout: "2m",
			},
		},
		Workspace: WorkspaceConfig{
			Root:            "./data/work",
			MaxAge:          "6h",
			JanitorSchedule: "@every 15m",
		},
		Transcoder: TranscoderConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			VideoCodec:  "libx264",
			Preset:      "veryfast",
			CRF:         23,
			KillGrace:   "5s",
		},
		Matcher: MatcherConfig{
			ThemeWeight:    0.6,
			LexicalWeight:  0.35,
			TieBreakWeight: 0.05,
		},
		Pipeline: PipelineConfig{
			ExtractionPolicy:   ExtractionFailFast,
			ExtractConcurrency: 2,
			HeartbeatInterval:  "20s",
			MaxRetries:         2,
			StageTimeouts: StageTimeoutsConfig{
				Matching:   "30s",
				Extracting: "10m",
				Assembling: "10m",
				Publishing: "5m",
				Finalizing: "1m",
			},
		},
		Recovery: RecoveryConfig{
			Enabled:               true,
			Schedule:              "@every 30s",
			StuckThreshold:        "90s",
			LookbackWindow:        "24h",
			MaxResubmitsPerSecond: 5,
			RecentEvents:          50,
		},
		Templates: TemplatesConfig{
			Dir: "./templates",
		},
		Catalog: CatalogConfig{
			Dir: "./catalog",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files; CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STAYREEL_ENV"); env != "" {
		config.Environment = env
	}

	// Queue configuration
	if pollInterval := os.Getenv("STAYREEL_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("STAYREEL_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("STAYREEL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if sourceRoot := os.Getenv("STAYREEL_MEDIA_SOURCE_ROOT"); sourceRoot != "" {
		config.Storage.Media.SourceRoot = sourceRoot
	}
	if publishRoot := os.Getenv("STAYREEL_MEDIA_PUBLISH_ROOT"); publishRoot != "" {
		config.Storage.Media.PublishRoot = publishRoot
	}
	if workspace := os.Getenv("STAYREEL_WORKSPACE_ROOT"); workspace != "" {
		config.Workspace.Root = workspace
	}

	// Transcoder configuration
	if ffmpeg := os.Getenv("STAYREEL_FFMPEG_PATH"); ffmpeg != "" {
		config.Transcoder.FFmpegPath = ffmpeg
	}
	if ffprobe := os.Getenv("STAYREEL_FFPROBE_PATH"); ffprobe != "" {
		config.Transcoder.FFprobePath = ffprobe
	}

	// Pipeline configuration
	if policy := os.Getenv("STAYREEL_EXTRACTION_POLICY"); policy != "" {
		config.Pipeline.ExtractionPolicy = ExtractionPolicy(policy)
	}
	if maxRetries := os.Getenv("STAYREEL_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Pipeline.MaxRetries = mr
		}
	}

	// Recovery configuration
	if enabled := os.Getenv("STAYREEL_RECOVERY_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Recovery.Enabled = e
		}
	}
	if threshold := os.Getenv("STAYREEL_RECOVERY_STUCK_THRESHOLD"); threshold != "" {
		config.Recovery.StuckThreshold = threshold
	}

	// Logging configuration
	if level := os.Getenv("STAYREEL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("STAYREEL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, workers int, logLevel string) {
	if workers > 0 {
		config.Queue.Concurrency = workers
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	durations := map[string]string{
		"queue.poll_interval":                c.Queue.PollInterval,
		"queue.visibility_timeout":           c.Queue.VisibilityTimeout,
		"storage.media.fetch_timeout":        c.Storage.Media.FetchTimeout,
		"workspace.max_age":                  c.Workspace.MaxAge,
		"transcoder.kill_grace":              c.Transcoder.KillGrace,
		"pipeline.heartbeat_interval":        c.Pipeline.HeartbeatInterval,
		"pipeline.stage_timeouts.matching":   c.Pipeline.StageTimeouts.Matching,
		"pipeline.stage_timeouts.extracting": c.Pipeline.StageTimeouts.Extracting,
		"pipeline.stage_timeouts.assembling": c.Pipeline.StageTimeouts.Assembling,
		"pipeline.stage_timeouts.publishing": c.Pipeline.StageTimeouts.Publishing,
		"pipeline.stage_timeouts.finalizing": c.Pipeline.StageTimeouts.Finalizing,
		"recovery.stuck_threshold":           c.Recovery.StuckThreshold,
		"recovery.lookback_window":           c.Recovery.LookbackWindow,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	if err := ValidateSchedule(c.Recovery.Schedule); err != nil {
		return fmt.Errorf("invalid recovery.schedule: %w", err)
	}
	if err := ValidateSchedule(c.Workspace.JanitorSchedule); err != nil {
		return fmt.Errorf("invalid workspace.janitor_schedule: %w", err)
	}

	switch c.Pipeline.ExtractionPolicy {
	case ExtractionFailFast, ExtractionSkipSlot:
	default:
		return fmt.Errorf("invalid pipeline.extraction_policy %q (expected %s or %s)",
			c.Pipeline.ExtractionPolicy, ExtractionFailFast, ExtractionSkipSlot)
	}

	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0")
	}

	heartbeat := ParseDurationOr(c.Pipeline.HeartbeatInterval, 0)
	threshold := ParseDurationOr(c.Recovery.StuckThreshold, 0)
	if heartbeat > 0 && threshold > 0 && heartbeat >= threshold {
		return fmt.Errorf("pipeline.heartbeat_interval (%s) must be shorter than recovery.stuck_threshold (%s)",
			heartbeat, threshold)
	}

	return nil
}

// ValidateSchedule parses a cron schedule, including @every descriptors
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationOr parses value, returning fallback when it is empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
