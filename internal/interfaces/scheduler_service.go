package interfaces

import (
	"context"
	"time"
)

// TaskHandler is one run of a scheduled maintenance task
type TaskHandler func(ctx context.Context) error

// TaskStatus is the observable state of a registered task
type TaskStatus struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
	Runs        int        `json:"runs"`
}

// TaskScheduler runs named maintenance tasks on cron schedules
type TaskScheduler interface {
	// Start begins firing enabled tasks
	Start() error

	// Stop halts the scheduler and waits for running tasks
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterTask adds an enabled task; schedule is a cron expression or @every descriptor
	RegisterTask(name, schedule, description string, handler TaskHandler) error

	// EnableTask re-schedules a disabled task
	EnableTask(name string) error

	// DisableTask unschedules a task without forgetting it
	DisableTask(name string) error

	// TriggerTask runs a task once, outside its schedule
	TriggerTask(name string) error

	// GetTaskStatus returns the status of a specific task
	GetTaskStatus(name string) (*TaskStatus, error)

	// GetAllTaskStatuses returns all task statuses sorted by name
	GetAllTaskStatuses() []*TaskStatus
}
