package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
)

// taskEntry represents a registered task with metadata
type taskEntry struct {
	name        string
	schedule    string
	description string
	handler     interfaces.TaskHandler
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
	runs        int
}

// Service runs periodic maintenance tasks (recovery sweeps, workspace cleanup) on cron schedules.
// A task never overlaps itself: a tick that arrives while the previous run is still
// going is skipped.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
	taskMu  sync.Mutex // Protects tasks map and entries
	tasks   map[string]*taskEntry
	wg      sync.WaitGroup
	running bool
}

var _ interfaces.TaskScheduler = (*Service)(nil)

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*taskEntry),
	}
}

// Start begins firing registered tasks
func (s *Service) Start() error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler, cancels running tasks and waits for them to return
func (s *Service) Stop() error {
	// Cancel under the lock so no task can start between cancel and Wait
	s.taskMu.Lock()
	wasRunning := s.running
	s.running = false
	s.cancel()
	s.taskMu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called and Stop has not
func (s *Service) IsRunning() bool {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	return s.running
}

// RegisterTask registers a new task with the scheduler
func (s *Service) RegisterTask(name, schedule, description string, handler interfaces.TaskHandler) error {
	// Validate schedule before attempting to register
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	entry := &taskEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeTask(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add task to cron: %w", err)
	}

	entry.cronID = cronID
	s.tasks[name] = entry

	s.logger.Info().
		Str("task", name).
		Str("schedule", schedule).
		Msg("Task registered")

	return nil
}

// EnableTask re-adds a disabled task to the cron schedule
func (s *Service) EnableTask(name string) error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if entry.enabled {
		return nil
	}

	cronID, err := s.cron.AddFunc(entry.schedule, func() {
		s.executeTask(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add task to cron: %w", err)
	}

	entry.cronID = cronID
	entry.enabled = true

	s.logger.Info().Str("task", name).Msg("Task enabled")
	return nil
}

// DisableTask removes a task from the cron schedule. A run in progress finishes.
func (s *Service) DisableTask(name string) error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	if !entry.enabled {
		return nil
	}

	s.cron.Remove(entry.cronID)
	entry.enabled = false

	s.logger.Info().Str("task", name).Msg("Task disabled")
	return nil
}

// TriggerTask runs a task immediately in the background
func (s *Service) TriggerTask(name string) error {
	s.taskMu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.taskMu.Unlock()
		return fmt.Errorf("task %s not found", name)
	}
	if entry.isRunning {
		s.taskMu.Unlock()
		return fmt.Errorf("task %s is already running", name)
	}
	s.taskMu.Unlock()

	s.logger.Info().Str("task", name).Msg("Manually triggering task")

	common.SafeGo(s.logger, "scheduler task "+name, func() {
		s.executeTask(name)
	})
	return nil
}

// GetTaskStatus returns the status of a specific task
func (s *Service) GetTaskStatus(name string) (*interfaces.TaskStatus, error) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return nil, fmt.Errorf("task %s not found", name)
	}

	var nextRun *time.Time
	if entry.enabled && s.running {
		next := s.cron.Entry(entry.cronID).Next
		if !next.IsZero() {
			nextRun = &next
		}
	}

	return &interfaces.TaskStatus{
		Name:        entry.name,
		Enabled:     entry.enabled,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
		Runs:        entry.runs,
	}, nil
}

// GetAllTaskStatuses returns every task status sorted by name
func (s *Service) GetAllTaskStatuses() []*interfaces.TaskStatus {
	s.taskMu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.taskMu.Unlock()
	sort.Strings(names)

	statuses := make([]*interfaces.TaskStatus, 0, len(names))
	for _, name := range names {
		if status, err := s.GetTaskStatus(name); err == nil {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// executeTask wraps task execution with overlap protection, panic recovery and status tracking
func (s *Service) executeTask(name string) {
	s.taskMu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.taskMu.Unlock()
		s.logger.Warn().Str("task", name).Msg("Task not found")
		return
	}
	if entry.isRunning {
		s.taskMu.Unlock()
		s.logger.Debug().Str("task", name).Msg("Previous run still in progress, skipping tick")
		return
	}
	if s.ctx.Err() != nil {
		s.taskMu.Unlock()
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.wg.Add(1)
	s.taskMu.Unlock()

	defer s.wg.Done()

	start := time.Now()
	var err error
	func() {
		defer common.RecoverToError("task "+name, &err)
		err = handler(s.ctx)
	}()

	completed := time.Now()
	s.taskMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	entry.runs++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.taskMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("task", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Task execution failed")
		return
	}
	s.logger.Debug().
		Str("task", name).
		Dur("duration", time.Since(start)).
		Msg("Task execution completed")
}
