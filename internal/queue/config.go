package queue

import (
	"time"

	"github.com/ternarybob/stayreel/internal/common"
)

// Config holds configuration for the queue manager and worker pool
type Config struct {
	// PollInterval is how often workers poll for messages
	PollInterval time.Duration

	// Concurrency is the number of concurrent workers
	Concurrency int

	// VisibilityTimeout hides a received message until it is deleted or the timeout passes
	VisibilityTimeout time.Duration

	// MaxReceive is the maximum times a message can be received before it is dropped
	MaxReceive int

	// QueueName prefixes the queue keys in Badger
	QueueName string
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval:      1 * time.Second,
		Concurrency:       4,
		VisibilityTimeout: 5 * time.Minute,
		MaxReceive:        3,
		QueueName:         "stayreel_jobs",
	}
}

// ConfigFromCommon converts the [queue] section, keeping defaults for unset values
func ConfigFromCommon(c common.QueueConfig) Config {
	config := NewDefaultConfig()
	config.PollInterval = common.ParseDurationOr(c.PollInterval, config.PollInterval)
	config.VisibilityTimeout = common.ParseDurationOr(c.VisibilityTimeout, config.VisibilityTimeout)
	if c.Concurrency > 0 {
		config.Concurrency = c.Concurrency
	}
	if c.MaxReceive > 0 {
		config.MaxReceive = c.MaxReceive
	}
	if c.QueueName != "" {
		config.QueueName = c.QueueName
	}
	return config
}
