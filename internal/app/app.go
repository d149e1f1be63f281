// -----------------------------------------------------------------------
// Application wiring - storage, queue, pipeline services and maintenance
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/jobs"
	"github.com/ternarybob/stayreel/internal/models"
	"github.com/ternarybob/stayreel/internal/queue"
	"github.com/ternarybob/stayreel/internal/services/assembler"
	"github.com/ternarybob/stayreel/internal/services/events"
	"github.com/ternarybob/stayreel/internal/services/extractor"
	"github.com/ternarybob/stayreel/internal/services/janitor"
	"github.com/ternarybob/stayreel/internal/services/matcher"
	"github.com/ternarybob/stayreel/internal/services/media"
	"github.com/ternarybob/stayreel/internal/services/objectstore"
	"github.com/ternarybob/stayreel/internal/services/recovery"
	"github.com/ternarybob/stayreel/internal/services/scheduler"
	"github.com/ternarybob/stayreel/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	StorageManager *badger.Manager

	// Queue
	QueueManager *queue.BadgerManager
	WorkerPool   *queue.WorkerPool

	// Events
	EventService *events.Service

	// Pipeline
	Transcoder   *media.FFmpeg
	ObjectStore  interfaces.ObjectStore
	Matcher      *matcher.Matcher
	Extractor    *extractor.Extractor
	Assembler    *assembler.Assembler
	Orchestrator *jobs.Orchestrator
	JobService   *jobs.Service

	// Maintenance
	SchedulerService *scheduler.Service
	RecoveryMonitor  *recovery.Monitor
	Janitor          *janitor.Janitor

	WorkerID string
}

// New initializes the application with all dependencies. Nothing consumes the
// queue or fires scheduled tasks until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initQueue(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	app.EventService = events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, logger); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initMaintenance(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize maintenance tasks: %w", err)
	}

	logger.Info().
		Str("worker_id", app.WorkerID).
		Int("workers", cfg.Queue.Concurrency).
		Bool("recovery_enabled", cfg.Recovery.Enabled).
		Str("extraction_policy", string(cfg.Pipeline.ExtractionPolicy)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens Badger and seeds templates and the clip catalog.
// Directory templates load after the built-ins and win on id collisions.
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	// Loader failures are logged, not fatal: templates can also arrive later via files on restart
	if err := storageManager.LoadBuiltinTemplates(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load built-in templates")
	}
	if err := storageManager.LoadTemplatesFromFiles(a.ctx, a.Config.Templates.Dir); err != nil {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Templates.Dir).Msg("Failed to load templates from files")
	}
	if err := storageManager.LoadCatalogFromFiles(a.ctx, a.Config.Catalog.Dir); err != nil {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Catalog.Dir).Msg("Failed to load clip catalog from files")
	}

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initQueue builds the Badger-backed message queue on the shared database
func (a *App) initQueue() error {
	store, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok || store == nil {
		return errors.New("storage manager does not expose a badgerhold store")
	}

	queueConfig := queue.ConfigFromCommon(a.Config.Queue)
	queueMgr, err := queue.NewBadgerManager(store.Badger(), queueConfig, a.Logger)
	if err != nil {
		return err
	}
	a.QueueManager = queueMgr
	a.WorkerPool = queue.NewWorkerPool(queueMgr, queueConfig, a.Logger)
	return nil
}

// initServices wires the generation pipeline and registers its queue handler
func (a *App) initServices() error {
	a.Transcoder = media.NewFFmpeg(a.Config.Transcoder, a.Logger)
	if err := a.Transcoder.CheckDependencies(); err != nil {
		// Submissions and status still work; every job will fail at extraction
		a.Logger.Warn().Err(err).Msg("Media tooling unavailable")
	}

	a.ObjectStore = objectstore.NewFilesystemStore(a.Config.Storage.Media, a.Logger)
	a.Matcher = matcher.NewMatcher(matcher.NewScorer(matcher.WeightsFromConfig(a.Config.Matcher), nil))
	a.Extractor = extractor.NewExtractor(a.ObjectStore, a.Transcoder, a.Config.Pipeline.ExtractConcurrency, a.Logger)
	a.Assembler = assembler.NewAssembler(a.Transcoder, a.Logger)

	hostname, _ := os.Hostname()
	a.WorkerID = common.NewWorkerID(hostname)

	a.Orchestrator = jobs.NewOrchestrator(jobs.Dependencies{
		Jobs:        a.StorageManager.JobStorage(),
		Clips:       a.StorageManager.ClipStorage(),
		Templates:   a.StorageManager.TemplateStorage(),
		Queue:       a.QueueManager,
		ObjectStore: a.ObjectStore,
		Transcoder:  a.Transcoder,
		Matcher:     a.Matcher,
		Extractor:   a.Extractor,
		Assembler:   a.Assembler,
		Events:      a.EventService,
	}, jobs.ConfigFromCommon(a.Config, a.WorkerID), a.Logger)

	a.WorkerPool.RegisterHandler(models.JobTypeGenerateVideo, a.Orchestrator.HandleMessage)

	a.JobService = jobs.NewService(
		a.StorageManager.JobStorage(),
		a.QueueManager,
		a.Config.Pipeline.MaxRetries,
		a.Logger,
	)
	a.JobService.SetEventService(a.EventService)
	return nil
}

// initMaintenance registers the recovery sweep and workspace janitor with the scheduler
func (a *App) initMaintenance() error {
	a.SchedulerService = scheduler.NewService(a.Logger)

	if a.Config.Recovery.Enabled {
		a.RecoveryMonitor = recovery.NewMonitor(
			a.StorageManager.JobStorage(),
			a.QueueManager,
			a.SchedulerService,
			recovery.ConfigFromCommon(a.Config.Recovery),
			a.Logger,
		)
		a.RecoveryMonitor.SetEventService(a.EventService)
		if err := a.RecoveryMonitor.Start(); err != nil {
			return err
		}
	} else {
		a.Logger.Warn().Msg("Recovery monitor disabled, stalled jobs will not be reclaimed")
	}

	a.Janitor = janitor.NewJanitor(a.Config.Workspace, a.Logger)
	if err := a.Janitor.Register(a.SchedulerService); err != nil {
		return err
	}
	return nil
}

// Start begins consuming the queue and firing scheduled maintenance
func (a *App) Start() error {
	if err := a.WorkerPool.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	a.Logger.Info().Str("worker_id", a.WorkerID).Msg("Workers and scheduler started")
	return nil
}

// Close stops workers and maintenance, then closes the queue and storage.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	if a.RecoveryMonitor != nil {
		a.RecoveryMonitor.Stop()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		} else {
			a.Logger.Info().Msg("Worker pool stopped")
		}
	}

	if a.EventService != nil {
		a.EventService.Close()
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
		a.Logger.Info().Msg("Storage closed")
	}

	a.Logger.Debug().Int64("goroutines_spawned", common.GetGoroutineCount()).Msg("Application closed")

	return nil
}
