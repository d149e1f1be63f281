package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// WorkerPool manages a pool of workers that process queue messages.
// Each message is handled start to finish by one worker.
type WorkerPool struct {
	queueMgr interfaces.QueueManager
	config   Config
	handlers map[string]JobHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr interfaces.QueueManager, config Config, logger arbor.ILogger) *WorkerPool {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	return &WorkerPool{
		queueMgr: queueMgr,
		config:   config,
		handlers: make(map[string]JobHandler),
		logger:   logger,
	}
}

// RegisterHandler registers a job type handler. Call before Start.
func (wp *WorkerPool) RegisterHandler(jobType string, handler JobHandler) {
	wp.handlers[jobType] = handler
	wp.logger.Debug().
		Str("job_type", jobType).
		Msg("Job handler registered")
}

// Start starts the worker goroutines under ctx
func (wp *WorkerPool) Start(ctx context.Context) error {
	if wp.cancel != nil {
		return errors.New("worker pool already started")
	}
	wp.ctx, wp.cancel = context.WithCancel(ctx)

	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Dur("poll_interval", wp.config.PollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop cancels in-flight handlers and waits for workers to exit
func (wp *WorkerPool) Stop() error {
	if wp.cancel == nil {
		return nil
	}
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts across the poll interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-time.After(staggerDelay):
		case <-wp.ctx.Done():
			return
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain whatever is ready before waiting for the next tick
			for wp.ctx.Err() == nil {
				err := wp.processMessage(workerID)
				if errors.Is(err, ErrNoMessage) {
					break
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, deleteFn, err := wp.queueMgr.Receive(wp.ctx)
	if err != nil {
		if errors.Is(err, ErrNoMessage) {
			return ErrNoMessage
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	handler, exists := wp.handlers[msg.Type]
	if !exists {
		wp.logger.Error().
			Str("type", msg.Type).
			Str("message_id", msg.ID).
			Str("job_id", msg.JobID).
			Msg("No handler registered for job type")
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unknown job type message")
		}
		return fmt.Errorf("no handler for job type: %s", msg.Type)
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := wp.invoke(handler, msg)
	duration := time.Since(startTime)

	// The job record, not the message, carries retry state: the recovery monitor
	// re-enqueues stalled jobs, so the message is always removed here.
	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to delete message after processing")
	}

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Str("type", msg.Type).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
		return handlerErr
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message handled")
	return nil
}

// invoke runs the handler, turning a panic into an error so the worker survives
func (wp *WorkerPool) invoke(handler JobHandler, msg *models.QueueMessage) (err error) {
	defer common.RecoverToError("job handler "+msg.Type, &err)
	return handler(wp.ctx, msg)
}
